package registry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

// ErrJumpCycle is returned when a jump chain leads back to a host already on
// the resolution path.
var ErrJumpCycle = errors.New("jump host cycle")

// Hop is one resolved step of a jump chain.
type Hop struct {
	// Token is what goes into ProxyJump / -J.
	Token    string    `json:"token"`
	User     string    `json:"user,omitempty"`
	HostName string    `json:"host_name,omitempty"`
	Port     int       `json:"port,omitempty"`
	HostID   uuid.UUID `json:"host_id,omitzero"`
	// Dangling marks a reference whose target no longer exists; Token is
	// the stored fallback alias.
	Dangling bool `json:"dangling,omitempty"`
}

func (h Hop) String() string {
	if h.Dangling {
		return h.Token + " (missing)"
	}
	if h.HostName == "" || h.HostName == h.Token {
		return h.Token
	}
	target := h.HostName
	if h.User != "" {
		target = h.User + "@" + target
	}
	if h.Port != 0 && h.Port != util.DefaultSSHPort {
		target += ":" + strconv.Itoa(h.Port)
	}
	return h.Token + " (" + target + ")"
}

// ResolveChain resolves h's own hops, one level deep. Hops that cannot be
// rendered at all are skipped.
func (r *Registry) ResolveChain(h model.Host) []Hop {
	out := make([]Hop, 0, len(h.JumpHosts))
	for _, j := range h.JumpHosts {
		if hop, ok := r.resolveHop(j); ok {
			out = append(out, hop)
		}
	}
	return out
}

func (r *Registry) resolveHop(j model.JumpHost) (Hop, bool) {
	switch j.Kind {
	case model.JumpReference:
		if j.ReferencedHostID != uuid.Nil {
			if i := r.hostIndex(j.ReferencedHostID); i >= 0 && r.hosts[i].Alias != "" {
				t := r.hosts[i]
				return Hop{Token: t.Alias, User: t.User, HostName: t.HostName, Port: t.Port, HostID: t.ID}, true
			}
		}
		if j.Alias == "" {
			return Hop{}, false
		}
		return Hop{Token: j.Alias, Dangling: true}, true
	case model.JumpManual:
		if j.HostName == "" {
			return Hop{}, false
		}
		return Hop{Token: j.ManualSpec(), User: j.User, HostName: j.HostName, Port: j.Port}, true
	default:
		return Hop{}, false
	}
}

// ProxyJumpValue joins the chain's tokens with commas.
func (r *Registry) ProxyJumpValue(h model.Host) string {
	hops := r.ResolveChain(h)
	tokens := make([]string, len(hops))
	for i, hop := range hops {
		tokens[i] = hop.Token
	}
	return strings.Join(tokens, ",")
}

// ProxyJumpDirective renders "ProxyJump a,b", or "" when h has no usable hop.
func (r *Registry) ProxyJumpDirective(h model.Host) string {
	v := r.ProxyJumpValue(h)
	if v == "" {
		return ""
	}
	return "ProxyJump " + v
}

// ExpandChain resolves h's chain transitively: a referenced host's own hops
// come before it. Re-entering a host already on the current path returns an
// error wrapping ErrJumpCycle that names the path.
func (r *Registry) ExpandChain(h model.Host) ([]Hop, error) {
	onPath := map[uuid.UUID]bool{h.ID: true}
	return r.expand(h, onPath, []string{h.Alias})
}

func (r *Registry) expand(h model.Host, onPath map[uuid.UUID]bool, path []string) ([]Hop, error) {
	var out []Hop
	for _, hop := range r.ResolveChain(h) {
		if hop.HostID == uuid.Nil {
			out = append(out, hop)
			continue
		}
		if onPath[hop.HostID] {
			return nil, fmt.Errorf("%w: %s", ErrJumpCycle, strings.Join(append(path, hop.Token), " -> "))
		}
		target := r.hosts[r.hostIndex(hop.HostID)]
		onPath[hop.HostID] = true
		nested, err := r.expand(target, onPath, append(path, hop.Token))
		delete(onPath, hop.HostID)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
		out = append(out, hop)
	}
	return out, nil
}

// ParseProxyJump decodes a ProxyJump value. Each comma-separated token that
// equals an existing alias becomes a reference hop; anything else is read as
// [user@]host[:port]. Empty tokens are skipped.
func (r *Registry) ParseProxyJump(value string) []model.JumpHost {
	var out []model.JumpHost
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if t, ok := r.HostByAlias(tok); ok {
			out = append(out, model.ReferenceJump(t))
			continue
		}
		out = append(out, parseManualJump(tok))
	}
	return out
}

func parseManualJump(tok string) model.JumpHost {
	user, host := "", tok
	if at := strings.Index(tok, "@"); at >= 0 {
		user, host = tok[:at], tok[at+1:]
	}
	port := util.DefaultSSHPort
	if h, p, ok := util.SplitHostPort(host); ok {
		host, port = h, p
	} else {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	j := model.ManualJump(user, host, port)
	j.Alias = tok
	return j
}
