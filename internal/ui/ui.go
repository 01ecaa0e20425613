// Package ui implements the interactive dashboard: a grouped host list with
// filtering, connectivity probes, favorites and tunnel controls.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/appconfig"
	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/history"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/security"
	"github.com/treykane/ssh-profiles/internal/sshclient"
	"github.com/treykane/ssh-profiles/internal/store"
	"github.com/treykane/ssh-profiles/internal/tunnel"
	"github.com/treykane/ssh-profiles/internal/util"
)

// Options wires the dashboard to the rest of the application.
type Options struct {
	Store   *store.Store
	Config  appconfig.Config
	Logger  *slog.Logger
	Client  *sshclient.Client
	Prober  sshclient.Prober
	Tunnels *tunnel.Manager
	// Attach is called with every freshly loaded registry (journal
	// subscription). May be nil.
	Attach func(*registry.Registry)
}

type tickMsg time.Time

type statusMsg string

// reloadMsg is sent when the config file changed on disk.
type reloadMsg struct{}

// probeMsg carries a finished probe back to the UI loop, which is the only
// place the registry is written. The alias is used only when a reload has
// replaced the host ids since the probe started.
type probeMsg struct {
	id     uuid.UUID
	alias  string
	result model.TestResult
}

type rowKind int

const (
	rowHeader rowKind = iota
	rowHost
)

// row is one line of the host list: a section header or a host.
type row struct {
	kind      rowKind
	title     string
	groupID   uuid.UUID
	color     model.GroupColor
	collapsed bool
	count     int
	host      model.Host
}

func (r row) key() string {
	if r.kind == rowHost {
		return "h:" + r.host.Alias
	}
	return "g:" + r.title
}

type modelUI struct {
	opts        Options
	reg         *registry.Registry
	rows        []row
	sel         int
	filter      string
	filterMode  bool
	recentFirst bool
	showHelp    bool
	status      string
	tunnels     []model.TunnelRuntime
	width       int
	height      int
	form        *hostForm
	changes     chan struct{}
}

func newModel(opts Options, reg *registry.Registry) modelUI {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := modelUI{opts: opts, reg: reg, changes: make(chan struct{}, 1)}
	m.buildRows()
	if opts.Tunnels != nil {
		m.tunnels = opts.Tunnels.Snapshot()
	}
	m.status = "Ready. Enter connects, t tests the selected host, a adds a host."
	return m
}

// reload replaces the registry with a fresh read of the config file.
func (m *modelUI) reload() {
	reg := m.opts.Store.Load()
	if m.opts.Attach != nil {
		m.opts.Attach(reg)
	}
	m.reg = reg
	m.buildRows()
}

// save writes the registry and reports failures in the status line.
func (m *modelUI) save() bool {
	if err := m.opts.Store.Save(m.reg); err != nil {
		m.status = "Save failed: " + security.UserMessage(err, m.opts.Config.Security.RedactErrors)
		return false
	}
	return true
}

// buildRows lays the hosts out as favorites first, then each group in
// order, then ungrouped hosts. A collapsed group shows only its header
// unless a filter is active.
func (m *modelUI) buildRows() {
	prev := ""
	if m.sel >= 0 && m.sel < len(m.rows) {
		prev = m.rows[m.sel].key()
	}

	hosts := m.reg.Filter(m.filter)
	if m.recentFirst {
		lastUsed, err := history.LastUsed()
		if err != nil {
			m.status = "history unavailable: " + err.Error()
		}
		hosts = history.SortHostsRecent(hosts, lastUsed)
	}
	filtering := strings.TrimSpace(m.filter) != ""

	var favorites []model.Host
	byGroup := map[uuid.UUID][]model.Host{}
	for _, h := range hosts {
		if h.Favorite {
			favorites = append(favorites, h)
			continue
		}
		gid := h.GroupID
		if _, ok := m.reg.Group(gid); !ok {
			gid = uuid.Nil
		}
		byGroup[gid] = append(byGroup[gid], h)
	}

	var rows []row
	appendHosts := func(hs []model.Host) {
		for _, h := range hs {
			rows = append(rows, row{kind: rowHost, host: h})
		}
	}
	if len(favorites) > 0 {
		rows = append(rows, row{kind: rowHeader, title: "Favorites", color: model.ColorYellow, count: len(favorites)})
		appendHosts(favorites)
	}
	for _, g := range m.reg.Groups() {
		members := byGroup[g.ID]
		if filtering && len(members) == 0 {
			continue
		}
		collapsed := !g.Expanded && !filtering
		rows = append(rows, row{kind: rowHeader, title: g.Name, groupID: g.ID, color: g.Color, collapsed: collapsed, count: len(members)})
		if !collapsed {
			appendHosts(members)
		}
	}
	if ungrouped := byGroup[uuid.Nil]; len(ungrouped) > 0 {
		if len(rows) > 0 {
			rows = append(rows, row{kind: rowHeader, title: "Ungrouped", color: model.ColorGray, count: len(ungrouped)})
		}
		appendHosts(ungrouped)
	}
	m.rows = rows

	m.sel = -1
	for i, r := range rows {
		if r.key() == prev {
			m.sel = i
			break
		}
	}
	if m.sel < 0 {
		m.sel = m.firstHostRow()
	}
}

func (m modelUI) firstHostRow() int {
	for i, r := range m.rows {
		if r.kind == rowHost {
			return i
		}
	}
	return 0
}

func (m modelUI) selected() (row, bool) {
	if m.sel < 0 || m.sel >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.sel], true
}

// selectedHost returns the current registry copy of the selected host.
func (m modelUI) selectedHost() (model.Host, bool) {
	r, ok := m.selected()
	if !ok || r.kind != rowHost {
		return model.Host{}, false
	}
	return m.lookupHost(r.host.ID, r.host.Alias)
}

// lookupHost finds a host by id, falling back to its alias after a reload.
func (m modelUI) lookupHost(id uuid.UUID, alias string) (model.Host, bool) {
	if h, ok := m.reg.Host(id); ok {
		return h, true
	}
	return m.reg.HostByAlias(alias)
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = util.DefaultRefreshSeconds
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitForChange blocks until the watcher reports a change.
func (m modelUI) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		<-ch
		return reloadMsg{}
	}
}

func (m modelUI) probeCmd(h model.Host) tea.Cmd {
	prober := m.opts.Prober
	return func() tea.Msg {
		return probeMsg{id: h.ID, alias: h.Alias, result: prober.Probe(context.Background(), h)}
	}
}

func (m modelUI) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.opts.Config.UI.RefreshSeconds), m.waitForChange())
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.opts.Tunnels != nil {
			m.tunnels = m.opts.Tunnels.Snapshot()
		}
		return m, tickCmd(m.opts.Config.UI.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case reloadMsg:
		m.reload()
		m.status = "Config changed on disk; reloaded"
		return m, m.waitForChange()
	case probeMsg:
		h, ok := m.lookupHost(msg.id, msg.alias)
		if !ok {
			return m, nil
		}
		if err := m.reg.RecordTest(h.ID, msg.result); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.buildRows()
		m.status = fmt.Sprintf("%s: %s", msg.alias, msg.result.String())
		return m, nil
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m modelUI) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filterMode = false
	case "esc":
		m.filterMode = false
		m.filter = ""
	case "backspace":
		if len(m.filter) > 0 {
			m.filter = m.filter[:len(m.filter)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.filter += msg.String()
		}
	}
	m.buildRows()
	return m, nil
}

func (m modelUI) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.form = nil
		m.status = "Cancelled"
		return m, nil
	}
	res, cmd := m.form.update(msg)
	if res == nil {
		return m, cmd
	}
	if err := m.addHost(res); err != nil {
		m.form.errMsg = err.Error()
		return m, nil
	}
	m.form = nil
	m.status = "Added " + res.host.Alias
	if res.connect {
		h, _ := m.reg.HostByAlias(res.host.Alias)
		return m, m.connect(h)
	}
	return m, nil
}

// addHost validates a form result and saves it.
func (m *modelUI) addHost(res *formResult) error {
	if err := config.ValidateAlias(res.host.Alias); err != nil {
		return err
	}
	if _, exists := m.reg.HostByAlias(res.host.Alias); exists {
		return fmt.Errorf("host %s already exists", res.host.Alias)
	}
	h := res.host
	if res.group != "" {
		g, ok := m.reg.GroupByName(res.group)
		if !ok {
			return fmt.Errorf("unknown group %q", res.group)
		}
		h.GroupID = g.ID
	}
	id, err := m.reg.AddHost(h)
	if err != nil {
		return err
	}
	if res.jump != "" {
		for _, j := range m.reg.ParseProxyJump(res.jump) {
			if err := m.reg.AddJumpHost(id, j); err != nil {
				_ = m.reg.RemoveHost(id)
				return err
			}
		}
	}
	if !m.save() {
		_ = m.reg.RemoveHost(id)
		return fmt.Errorf("%s", m.status)
	}
	m.buildRows()
	return nil
}

func (m modelUI) connect(h model.Host) tea.Cmd {
	if err := history.Touch(h.Alias); err != nil {
		m.opts.Logger.Debug("failed to record history", "alias", h.Alias, "error", err)
	}
	return tea.ExecProcess(m.opts.Client.ConnectCommand(h), func(err error) tea.Msg {
		if err != nil {
			return statusMsg("ssh exited: " + err.Error())
		}
		return statusMsg("ssh session to " + h.Alias + " closed")
	})
}

func (m modelUI) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.opts.Tunnels != nil {
			m.opts.Tunnels.StopAll()
		}
		return m, tea.Quit
	case "j", "down":
		if m.sel < len(m.rows)-1 {
			m.sel++
		}
	case "k", "up":
		if m.sel > 0 {
			m.sel--
		}
	case "/":
		m.filterMode = true
		m.status = "Filter mode: type and press Enter (Esc clears)"
	case "?":
		m.showHelp = !m.showHelp
	case "o":
		m.recentFirst = !m.recentFirst
		m.buildRows()
	case "r":
		m.reload()
		if m.opts.Tunnels != nil {
			m.tunnels = m.opts.Tunnels.Snapshot()
		}
		m.status = "Reloaded config and tunnel status"
	case "a":
		m.form = newForm()
		m.status = "New host"
	case " ", "enter":
		r, ok := m.selected()
		if !ok {
			break
		}
		if r.kind == rowHeader {
			m.toggleGroup(r)
			break
		}
		if msg.String() == "enter" {
			h, ok := m.selectedHost()
			if ok {
				return m, m.connect(h)
			}
		}
	case "t":
		h, ok := m.selectedHost()
		if !ok {
			break
		}
		if err := m.reg.BeginTest(h.ID); err != nil {
			m.status = err.Error()
			break
		}
		m.buildRows()
		m.status = "Testing " + h.Alias + "..."
		return m, m.probeCmd(h)
	case "f":
		h, ok := m.selectedHost()
		if !ok {
			break
		}
		if err := m.reg.SetFavorite(h.ID, !h.Favorite); err != nil {
			m.status = err.Error()
			break
		}
		if m.save() {
			m.buildRows()
			m.status = "Updated favorites"
		}
	case "T":
		h, ok := m.selectedHost()
		if !ok || m.opts.Tunnels == nil {
			break
		}
		m.toggleTunnel(h)
	}
	return m, nil
}

func (m *modelUI) toggleGroup(r row) {
	if r.groupID == uuid.Nil {
		return
	}
	expanded, err := m.reg.ToggleGroupExpanded(r.groupID)
	if err != nil {
		m.status = err.Error()
		return
	}
	if m.save() {
		m.buildRows()
		if expanded {
			m.status = "Expanded " + r.title
		} else {
			m.status = "Collapsed " + r.title
		}
	}
}

func (m *modelUI) toggleTunnel(h model.Host) {
	mgr := m.opts.Tunnels
	if rt, err := mgr.Get(tunnel.RuntimeID(h.Alias)); err == nil && (rt.State == model.TunnelUp || rt.State == model.TunnelStarting) {
		if err := mgr.StopByHost(h.Alias); err != nil {
			m.status = "Tunnel stop failed: " + err.Error()
		} else {
			m.status = "Tunnel stopped: " + h.Alias
		}
	} else {
		rt, err := mgr.Start(h)
		if err != nil {
			m.status = "Tunnel start failed: " + security.UserMessage(err, m.opts.Config.Security.RedactErrors)
		} else {
			m.status = fmt.Sprintf("Tunnel started: %s (pid=%d)", rt.ID, rt.PID)
		}
	}
	m.tunnels = mgr.Snapshot()
}

func (m modelUI) View() string {
	if m.form != nil {
		return m.form.view(m.renderPanel, m.effectiveWidth())
	}
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("SSH Profiles")
	order := "config order"
	if m.recentFirst {
		order = "recent first"
	}
	subhead := fmt.Sprintf("hosts=%d groups=%d tunnels=%d order=%s", m.reg.Len(), len(m.reg.Groups()), len(m.tunnels), order)

	left := strings.Builder{}
	for i, r := range m.rows {
		cursor := " "
		if i == m.sel {
			cursor = ">"
		}
		if r.kind == rowHeader {
			arrow := "v"
			if r.collapsed {
				arrow = ">"
			}
			title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(r.color.ANSI())).Render(r.title)
			left.WriteString(fmt.Sprintf("%s%s %s (%d)\n", cursor, arrow, title, r.count))
			continue
		}
		h := r.host
		left.WriteString(fmt.Sprintf("%s  %s%s %-20s %-22s %s\n", cursor, m.tunnelMark(h.Alias), testMark(h), h.Alias, h.DisplayTarget(), strings.Join(h.Tags, ",")))
	}
	if len(m.rows) == 0 {
		left.WriteString("  (no hosts matched)\n")
	}

	detail := strings.Builder{}
	if h, ok := m.selectedHost(); ok {
		detail.WriteString(m.hostDetail(h))
	} else if r, ok := m.selected(); ok && r.kind == rowHeader {
		detail.WriteString(fmt.Sprintf("%s: %d hosts\n\nSpace or Enter expands/collapses the group.\n", r.title, r.count))
	} else {
		detail.WriteString("Pick a host to view connection details.\n")
	}

	tbl := strings.Builder{}
	tbl.WriteString(fmt.Sprintf("%-20s %-22s %-10s %-8s %-8s %s\n", "HOST", "LOCAL", "STATE", "PID", "LAT", "FORWARDS"))
	for _, rt := range m.tunnels {
		tbl.WriteString(fmt.Sprintf("%-20s %-22s %-10s %-8d %-8d %s\n", rt.HostAlias, util.EmptyDash(rt.Local), rt.State, rt.PID, rt.LatencyMS, strings.Join(rt.Forwards, " ")))
	}
	if len(m.tunnels) == 0 {
		tbl.WriteString("(none)\n")
	}

	filterLine := fmt.Sprintf("Filter: %s", m.filter)
	if m.filterMode {
		filterLine += " (typing...)"
	}
	quickHelp := "Keys: Enter connect | t test | f favorite | a add | T tunnel | / filter | o order | r reload | ? help | q quit"
	main := m.renderMainPanels(left.String(), detail.String())
	tunnels := m.renderPanel("Tunnels", tbl.String(), m.effectiveWidth(), lipgloss.Color("63"))
	status := m.renderPanel("Status", m.status, m.effectiveWidth(), lipgloss.Color("205"))
	help := ""
	if m.showHelp {
		help = m.renderPanel("Help", m.helpBlock(), m.effectiveWidth(), lipgloss.Color("244"))
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		subhead,
		filterLine,
		quickHelp,
		main,
		tunnels,
		help,
		status,
	)
}

func (m modelUI) hostDetail(h model.Host) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Alias: %s\nHost: %s\nUser: %s\nPort: %d\nIdentityFile: %s\n",
		h.Alias, util.EmptyDash(h.HostName), util.EmptyDash(h.User), h.Port, util.EmptyDash(h.IdentityFile)))
	if g, ok := m.reg.Group(h.GroupID); ok {
		b.WriteString("Group: " + g.Name + "\n")
	}
	if len(h.Tags) > 0 {
		b.WriteString("Tags: " + strings.Join(h.Tags, ", ") + "\n")
	}
	if hops := m.reg.ResolveChain(h); len(hops) > 0 {
		names := make([]string, len(hops))
		for i, hop := range hops {
			names[i] = hop.String()
		}
		b.WriteString("Jump: " + strings.Join(names, " -> ") + "\n")
	}
	b.WriteString("Forwards:\n")
	if len(h.PortForwards) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, f := range h.PortForwards {
		state := ""
		if !f.Active {
			state = " (off)"
		}
		b.WriteString(fmt.Sprintf("  [%d] %s  %s%s\n", i, f.SSHArgument(), f.DisplayDescription(), state))
	}
	switch {
	case h.Testing:
		b.WriteString("\nTest: running...\n")
	case h.LastTest != nil:
		b.WriteString("\nTest: " + h.LastTest.String() + "\n")
	}
	b.WriteString("\nCommand:\n  " + sshclient.CommandLine(h, m.reg.ProxyJumpValue(h)) + "\n")
	return b.String()
}

func testMark(h model.Host) string {
	switch {
	case h.Testing:
		return "~"
	case h.LastTest == nil:
		return " "
	case h.LastTest.OK:
		return "+"
	default:
		return "!"
	}
}

func (m modelUI) tunnelMark(alias string) string {
	for _, rt := range m.tunnels {
		if rt.HostAlias == alias && (rt.State == model.TunnelUp || rt.State == model.TunnelStarting) {
			return "T"
		}
	}
	return " "
}

// Run starts the dashboard and blocks until the user quits.
func Run(opts Options) error {
	if err := sshclient.EnsureSSHBinary(); err != nil {
		return err
	}
	reg := opts.Store.Load()
	if opts.Attach != nil {
		opts.Attach(reg)
	}
	m := newModel(opts, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := opts.Store.Watch(ctx, func() {
			select {
			case m.changes <- struct{}{}:
			default:
			}
		})
		if err != nil {
			m.opts.Logger.Debug("config watcher stopped", "error", err)
		}
	}()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m modelUI) renderMainPanels(hostsPanel, detailsPanel string) string {
	width := m.effectiveWidth()
	if width < 96 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderPanel("Hosts", hostsPanel, width, lipgloss.Color("39")),
			m.renderPanel("Details", detailsPanel, width, lipgloss.Color("69")),
		)
	}
	leftWidth := width / 2
	rightWidth := width - leftWidth
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderPanel("Hosts", hostsPanel, leftWidth, lipgloss.Color("39")),
		m.renderPanel("Details", detailsPanel, rightWidth, lipgloss.Color("69")),
	)
}

func (m modelUI) helpBlock() string {
	return strings.Join([]string{
		"  Navigation: j/k or arrow keys move selection.",
		"  Groups: Space or Enter on a group header expands or collapses it.",
		"  Filtering: press /, type text or a glob such as web-*, then Enter.",
		"  Connect: press Enter on a host.",
		"  Test: press t to check the host accepts a batch-mode login.",
		"  Favorite: press f; favorites are listed first.",
		"  Add: press a to open the new host form.",
		"  Tunnel: press T to start or stop the host's active forwards.",
		"  Order: press o to toggle recent-first ordering.",
		"  Reload: press r; edits made to the file by others reload automatically.",
		"  Quit: press q (or Ctrl+C) and all managed tunnels are stopped.",
	}, "\n")
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
