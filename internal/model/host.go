// Package model defines the connection-profile types shared by the parser,
// the registry and the persistence layer.
package model

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Host is one connection profile, backed by a "Host <alias>" block.
type Host struct {
	ID           uuid.UUID         `json:"id"`
	Alias        string            `json:"alias"`
	HostName     string            `json:"host_name"`
	User         string            `json:"user,omitempty"`
	Port         int               `json:"port"`
	IdentityFile string            `json:"identity_file,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
	GroupID      uuid.UUID         `json:"group_id"`
	Tags         []string          `json:"tags,omitempty"`
	PortForwards []PortForward     `json:"port_forwards,omitempty"`
	JumpHosts    []JumpHost        `json:"jump_hosts,omitempty"`
	Favorite     bool              `json:"favorite,omitempty"`

	// Runtime-only probe state.
	Testing  bool        `json:"-"`
	LastTest *TestResult `json:"-"`
}

// NewHost returns a host with a fresh id and the default port.
func NewHost(alias string) Host {
	return Host{
		ID:      uuid.New(),
		Alias:   alias,
		Port:    22,
		Options: map[string]string{},
	}
}

// IsComplete reports whether the host can be persisted as a block.
func (h Host) IsComplete() bool {
	return strings.TrimSpace(h.Alias) != ""
}

// Grouped reports whether the host belongs to a group.
func (h Host) Grouped() bool {
	return h.GroupID != uuid.Nil
}

func (h Host) DisplayTarget() string {
	if h.HostName != "" {
		return h.HostName
	}
	return h.Alias
}

// UserAtHost renders user@hostname, or just the hostname when no user is set.
func (h Host) UserAtHost() string {
	if h.User == "" {
		return h.HostName
	}
	return h.User + "@" + h.HostName
}

// HasTag reports whether tag is attached to the host (case-insensitive).
func (h Host) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag attaches tag unless an equal tag is already present.
func (h *Host) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || h.HasTag(tag) {
		return
	}
	h.Tags = append(h.Tags, tag)
}

// ActiveForwards returns the forwards that are enabled and valid, in order.
func (h Host) ActiveForwards() []PortForward {
	var out []PortForward
	for _, f := range h.PortForwards {
		if f.Active && f.IsValid() {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a deep copy so callers never share maps or slices with the
// registry's arena.
func (h Host) Clone() Host {
	out := h
	if h.Options != nil {
		out.Options = make(map[string]string, len(h.Options))
		for k, v := range h.Options {
			out.Options[k] = v
		}
	}
	out.Tags = slices.Clone(h.Tags)
	out.PortForwards = slices.Clone(h.PortForwards)
	out.JumpHosts = slices.Clone(h.JumpHosts)
	if h.LastTest != nil {
		r := *h.LastTest
		out.LastTest = &r
	}
	return out
}
