// Package registry holds the in-memory model of every connection profile and
// group. It is the single owner of hosts and groups: accessors return copies,
// mutations are synchronous and notify subscribers with an events.Change.
//
// A Registry has no internal locking. It is meant to be driven by one owner
// (the CLI command or the dashboard loop); asynchronous work such as a
// connectivity probe hands its result back to that owner, which then calls
// RecordTest.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/events"
	"github.com/treykane/ssh-profiles/internal/model"
)

var (
	ErrHostNotFound    = errors.New("host not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrDuplicateID     = errors.New("id already in use")
	ErrInvalidForward  = errors.New("invalid port forward")
	ErrInvalidJump     = errors.New("invalid jump host")
	ErrIndexOutOfRange = errors.New("index out of range")
)

type Registry struct {
	hosts  []model.Host
	groups []model.Group

	subs    map[int]func(events.Change)
	nextSub int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{subs: map[int]func(events.Change){}}
}

// Restore builds a registry from loaded state without emitting changes.
// Hosts or groups without an id get a fresh one.
func Restore(hosts []model.Host, groups []model.Group) *Registry {
	r := New()
	for _, g := range groups {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		r.groups = append(r.groups, g)
	}
	for _, h := range hosts {
		if h.ID == uuid.Nil {
			h.ID = uuid.New()
		}
		if h.Options == nil {
			h.Options = map[string]string{}
		}
		r.hosts = append(r.hosts, h.Clone())
	}
	return r
}

// Subscribe registers fn for every change. The returned func removes it.
func (r *Registry) Subscribe(fn func(events.Change)) (cancel func()) {
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() { delete(r.subs, id) }
}

func (r *Registry) emit(kind events.Kind, h *model.Host, groupID uuid.UUID, detail string) {
	if len(r.subs) == 0 {
		return
	}
	c := events.Change{Timestamp: time.Now().UTC(), Kind: kind, GroupID: groupID, Detail: detail}
	if h != nil {
		c.HostID = h.ID
		c.Alias = h.Alias
		if groupID == uuid.Nil {
			c.GroupID = h.GroupID
		}
	}
	keys := make([]int, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		r.subs[k](c)
	}
}

// Notify emits a change that did not originate from a registry mutation,
// such as a completed save.
func (r *Registry) Notify(kind events.Kind, detail string) {
	r.emit(kind, nil, uuid.Nil, detail)
}

func (r *Registry) hostIndex(id uuid.UUID) int {
	return slices.IndexFunc(r.hosts, func(h model.Host) bool { return h.ID == id })
}

func (r *Registry) groupIndex(id uuid.UUID) int {
	return slices.IndexFunc(r.groups, func(g model.Group) bool { return g.ID == id })
}

func (r *Registry) mustHost(id uuid.UUID) (*model.Host, error) {
	i := r.hostIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrHostNotFound, id)
	}
	return &r.hosts[i], nil
}

func (r *Registry) checkGroup(id uuid.UUID) error {
	if id != uuid.Nil && r.groupIndex(id) < 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Hosts

// AddHost appends h and returns its id. A nil id is replaced with a fresh one.
// Duplicate aliases are allowed; doctor reports them.
func (r *Registry) AddHost(h model.Host) (uuid.UUID, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	} else if r.hostIndex(h.ID) >= 0 {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateID, h.ID)
	}
	if err := r.checkGroup(h.GroupID); err != nil {
		return uuid.Nil, err
	}
	if h.Port == 0 {
		h.Port = 22
	}
	if h.Options == nil {
		h.Options = map[string]string{}
	}
	h = h.Clone()
	r.hosts = append(r.hosts, h)
	r.emit(events.HostAdded, &h, uuid.Nil, "")
	return h.ID, nil
}

// UpdateHost replaces the stored host with the same id.
func (r *Registry) UpdateHost(h model.Host) error {
	cur, err := r.mustHost(h.ID)
	if err != nil {
		return err
	}
	if err := r.checkGroup(h.GroupID); err != nil {
		return err
	}
	if h.Options == nil {
		h.Options = map[string]string{}
	}
	*cur = h.Clone()
	r.emit(events.HostUpdated, cur, uuid.Nil, "")
	return nil
}

// RemoveHost deletes the host. Jump hosts elsewhere that reference it are
// left in place and fall back to their stored alias.
func (r *Registry) RemoveHost(id uuid.UUID) error {
	i := r.hostIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrHostNotFound, id)
	}
	removed := r.hosts[i]
	r.hosts = slices.Delete(r.hosts, i, i+1)
	r.emit(events.HostRemoved, &removed, uuid.Nil, "")
	return nil
}

func (r *Registry) Host(id uuid.UUID) (model.Host, bool) {
	i := r.hostIndex(id)
	if i < 0 {
		return model.Host{}, false
	}
	return r.hosts[i].Clone(), true
}

// HostByAlias returns the first host whose alias equals alias exactly.
func (r *Registry) HostByAlias(alias string) (model.Host, bool) {
	for _, h := range r.hosts {
		if h.Alias == alias {
			return h.Clone(), true
		}
	}
	return model.Host{}, false
}

// Hosts returns copies of every host in registry order.
func (r *Registry) Hosts() []model.Host {
	out := make([]model.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h.Clone())
	}
	return out
}

func (r *Registry) Len() int { return len(r.hosts) }

// ---------------------------------------------------------------------------
// Groups

// AddGroup appends g and returns its id.
func (r *Registry) AddGroup(g model.Group) (uuid.UUID, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	} else if r.groupIndex(g.ID) >= 0 {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateID, g.ID)
	}
	if strings.TrimSpace(g.Name) == "" {
		return uuid.Nil, errors.New("group name cannot be empty")
	}
	g.Color = model.ParseGroupColor(string(g.Color))
	r.groups = append(r.groups, g)
	r.emit(events.GroupAdded, nil, g.ID, g.Name)
	return g.ID, nil
}

func (r *Registry) UpdateGroup(g model.Group) error {
	i := r.groupIndex(g.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, g.ID)
	}
	g.Color = model.ParseGroupColor(string(g.Color))
	r.groups[i] = g
	r.emit(events.GroupUpdated, nil, g.ID, g.Name)
	return nil
}

// RemoveGroup deletes the group; its hosts become ungrouped.
func (r *Registry) RemoveGroup(id uuid.UUID) error {
	i := r.groupIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	name := r.groups[i].Name
	r.groups = slices.Delete(r.groups, i, i+1)
	for j := range r.hosts {
		if r.hosts[j].GroupID == id {
			r.hosts[j].GroupID = uuid.Nil
		}
	}
	r.emit(events.GroupRemoved, nil, id, name)
	return nil
}

func (r *Registry) Group(id uuid.UUID) (model.Group, bool) {
	i := r.groupIndex(id)
	if i < 0 {
		return model.Group{}, false
	}
	return r.groups[i], true
}

// GroupByName looks a group up case-insensitively.
func (r *Registry) GroupByName(name string) (model.Group, bool) {
	for _, g := range r.groups {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}
	return model.Group{}, false
}

// Groups returns the groups ordered by SortOrder, ties in insertion order.
func (r *Registry) Groups() []model.Group {
	out := slices.Clone(r.groups)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

// MoveHost assigns the host to groupID; uuid.Nil ungroups it.
func (r *Registry) MoveHost(hostID, groupID uuid.UUID) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if err := r.checkGroup(groupID); err != nil {
		return err
	}
	h.GroupID = groupID
	r.emit(events.HostMoved, h, groupID, "")
	return nil
}

func (r *Registry) HostsInGroup(groupID uuid.UUID) []model.Host {
	var out []model.Host
	for _, h := range r.hosts {
		if h.GroupID == groupID {
			out = append(out, h.Clone())
		}
	}
	return out
}

// Ungrouped returns the hosts without a group, including hosts whose group
// id no longer resolves.
func (r *Registry) Ungrouped() []model.Host {
	var out []model.Host
	for _, h := range r.hosts {
		if !h.Grouped() || r.groupIndex(h.GroupID) < 0 {
			out = append(out, h.Clone())
		}
	}
	return out
}

// ToggleGroupExpanded flips the group's expanded flag and returns the new value.
func (r *Registry) ToggleGroupExpanded(id uuid.UUID) (bool, error) {
	i := r.groupIndex(id)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	r.groups[i].Expanded = !r.groups[i].Expanded
	r.emit(events.GroupUpdated, nil, id, "expanded="+strconv.FormatBool(r.groups[i].Expanded))
	return r.groups[i].Expanded, nil
}

// ---------------------------------------------------------------------------
// Favorites, tags and search

func (r *Registry) SetFavorite(id uuid.UUID, favorite bool) error {
	h, err := r.mustHost(id)
	if err != nil {
		return err
	}
	h.Favorite = favorite
	r.emit(events.FavoriteChanged, h, uuid.Nil, strconv.FormatBool(favorite))
	return nil
}

func (r *Registry) Favorites() []model.Host {
	var out []model.Host
	for _, h := range r.hosts {
		if h.Favorite {
			out = append(out, h.Clone())
		}
	}
	return out
}

// SetTags replaces the host's tags, dropping blanks and case-insensitive
// duplicates.
func (r *Registry) SetTags(id uuid.UUID, tags []string) error {
	h, err := r.mustHost(id)
	if err != nil {
		return err
	}
	h.Tags = nil
	for _, t := range tags {
		h.AddTag(t)
	}
	r.emit(events.TagsChanged, h, uuid.Nil, strings.Join(h.Tags, ","))
	return nil
}

// Filter returns the hosts matching query in registry order. An empty query
// matches everything. A query with glob metacharacters is matched against
// alias and hostname; otherwise it is a case-insensitive substring search
// over alias, hostname, user and tags.
func (r *Registry) Filter(query string) []model.Host {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.Hosts()
	}
	if strings.ContainsAny(query, "*?[{") {
		g, err := glob.Compile(strings.ToLower(query))
		if err == nil {
			var out []model.Host
			for _, h := range r.hosts {
				if g.Match(strings.ToLower(h.Alias)) || g.Match(strings.ToLower(h.HostName)) {
					out = append(out, h.Clone())
				}
			}
			return out
		}
	}
	q := strings.ToLower(query)
	var out []model.Host
	for _, h := range r.hosts {
		if matchesQuery(h, q) {
			out = append(out, h.Clone())
		}
	}
	return out
}

func matchesQuery(h model.Host, q string) bool {
	for _, field := range []string{h.Alias, h.HostName, h.User} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, t := range h.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Jump hosts

// AddJumpHost appends a hop to the host's chain. A hop that references the
// host itself is rejected.
func (r *Registry) AddJumpHost(hostID uuid.UUID, j model.JumpHost) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if !j.IsValid() {
		return ErrInvalidJump
	}
	if j.Kind == model.JumpReference && j.ReferencedHostID == hostID {
		return fmt.Errorf("%w: %s jumps through itself", ErrJumpCycle, h.Alias)
	}
	h.JumpHosts = append(h.JumpHosts, j)
	r.emit(events.JumpChanged, h, uuid.Nil, "added "+j.DisplayName())
	return nil
}

func (r *Registry) RemoveJumpHost(hostID uuid.UUID, index int) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(h.JumpHosts) {
		return fmt.Errorf("%w: jump %d", ErrIndexOutOfRange, index)
	}
	name := h.JumpHosts[index].DisplayName()
	h.JumpHosts = slices.Delete(h.JumpHosts, index, index+1)
	r.emit(events.JumpChanged, h, uuid.Nil, "removed "+name)
	return nil
}

// MoveJumpHost moves the hop at from to position to.
func (r *Registry) MoveJumpHost(hostID uuid.UUID, from, to int) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	n := len(h.JumpHosts)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d", ErrIndexOutOfRange, from, to)
	}
	j := h.JumpHosts[from]
	h.JumpHosts = slices.Delete(h.JumpHosts, from, from+1)
	h.JumpHosts = slices.Insert(h.JumpHosts, to, j)
	r.emit(events.JumpChanged, h, uuid.Nil, fmt.Sprintf("moved %d -> %d", from, to))
	return nil
}

// ---------------------------------------------------------------------------
// Port forwards

func (r *Registry) AddPortForward(hostID uuid.UUID, f model.PortForward) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if !f.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidForward, f.SSHArgument())
	}
	h.PortForwards = append(h.PortForwards, f)
	r.emit(events.ForwardChanged, h, uuid.Nil, "added "+f.SSHArgument())
	return nil
}

func (r *Registry) UpdatePortForward(hostID uuid.UUID, index int, f model.PortForward) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(h.PortForwards) {
		return fmt.Errorf("%w: forward %d", ErrIndexOutOfRange, index)
	}
	if !f.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidForward, f.SSHArgument())
	}
	h.PortForwards[index] = f
	r.emit(events.ForwardChanged, h, uuid.Nil, "updated "+f.SSHArgument())
	return nil
}

func (r *Registry) RemovePortForward(hostID uuid.UUID, index int) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(h.PortForwards) {
		return fmt.Errorf("%w: forward %d", ErrIndexOutOfRange, index)
	}
	arg := h.PortForwards[index].SSHArgument()
	h.PortForwards = slices.Delete(h.PortForwards, index, index+1)
	r.emit(events.ForwardChanged, h, uuid.Nil, "removed "+arg)
	return nil
}

// SetForwardActive enables or disables a rule without deleting it.
func (r *Registry) SetForwardActive(hostID uuid.UUID, index int, active bool) error {
	h, err := r.mustHost(hostID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(h.PortForwards) {
		return fmt.Errorf("%w: forward %d", ErrIndexOutOfRange, index)
	}
	h.PortForwards[index].Active = active
	r.emit(events.ForwardChanged, h, uuid.Nil, fmt.Sprintf("%s active=%t", h.PortForwards[index].SSHArgument(), active))
	return nil
}

// ---------------------------------------------------------------------------
// Probe state

// BeginTest marks the host as being probed and clears the previous result.
func (r *Registry) BeginTest(id uuid.UUID) error {
	h, err := r.mustHost(id)
	if err != nil {
		return err
	}
	h.Testing = true
	h.LastTest = nil
	r.emit(events.TestStarted, h, uuid.Nil, "")
	return nil
}

// RecordTest stores a probe result. The last recorded result wins.
func (r *Registry) RecordTest(id uuid.UUID, result model.TestResult) error {
	h, err := r.mustHost(id)
	if err != nil {
		return err
	}
	h.Testing = false
	h.LastTest = &result
	r.emit(events.TestRecorded, h, uuid.Nil, result.String())
	return nil
}

// ---------------------------------------------------------------------------
// Serialization

// BindDirectives turns each host's opaque ProxyJump option into JumpHosts.
// It runs once after parsing so aliases can resolve against the full set.
// "ProxyJump none" stays opaque.
func (r *Registry) BindDirectives() {
	for i := range r.hosts {
		v, ok := r.hosts[i].Options["proxyjump"]
		if !ok || strings.EqualFold(strings.TrimSpace(v), "none") {
			continue
		}
		jumps := r.ParseProxyJump(v)
		if len(jumps) == 0 {
			continue
		}
		r.hosts[i].JumpHosts = jumps
		delete(r.hosts[i].Options, "proxyjump")
	}
}

// Directives returns the lines the serializer adds to h's block: the
// resolved ProxyJump, then every active, valid forward. Inactive forwards are
// kept in the metadata sidecar only.
func (r *Registry) Directives(h model.Host) []string {
	var out []string
	if d := r.ProxyJumpDirective(h); d != "" {
		out = append(out, d)
	}
	for _, f := range h.ActiveForwards() {
		out = append(out, f.ConfigString())
	}
	return out
}

// Render returns the config file text for the whole registry. A modeled jump
// chain takes precedence over a leftover opaque ProxyJump option.
func (r *Registry) Render() string {
	hosts := r.Hosts()
	for i := range hosts {
		if len(hosts[i].JumpHosts) > 0 {
			delete(hosts[i].Options, "proxyjump")
		}
	}
	return config.FormatWith(hosts, r.Directives)
}
