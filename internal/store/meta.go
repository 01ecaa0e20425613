package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/registry"
)

const metadataVersion = 1

// Metadata is the sidecar for everything the ssh config format cannot hold.
// Hosts are keyed by alias since ids are regenerated on every load.
type Metadata struct {
	Version int                 `yaml:"version"`
	Groups  []model.Group       `yaml:"groups,omitempty"`
	Hosts   map[string]HostMeta `yaml:"hosts,omitempty"`
}

type HostMeta struct {
	Group    string        `yaml:"group,omitempty"`
	Tags     []string      `yaml:"tags,omitempty"`
	Favorite bool          `yaml:"favorite,omitempty"`
	Forwards []ForwardMeta `yaml:"forwards,omitempty"`
}

// ForwardMeta carries a forward's description, or a whole forward when it is
// inactive and therefore absent from the config file.
type ForwardMeta struct {
	Directive   string `yaml:"directive"`
	Description string `yaml:"description,omitempty"`
	Active      bool   `yaml:"active"`
}

func (m HostMeta) empty() bool {
	return m.Group == "" && len(m.Tags) == 0 && !m.Favorite && len(m.Forwards) == 0
}

func (s *Store) readMetadata() (Metadata, error) {
	if s.metaPath == "" {
		return Metadata{}, nil
	}
	b, err := os.ReadFile(s.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, nil
		}
		return Metadata{}, err
	}
	var m Metadata
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", s.metaPath, err)
	}
	return m, nil
}

func marshalMetadata(m Metadata) ([]byte, error) {
	return yaml.Marshal(m)
}

// collectMetadata extracts the sidecar view of reg.
func collectMetadata(reg *registry.Registry) Metadata {
	m := Metadata{Version: metadataVersion, Groups: reg.Groups(), Hosts: map[string]HostMeta{}}
	for _, h := range reg.Hosts() {
		if !h.IsComplete() {
			continue
		}
		hm := HostMeta{Tags: h.Tags, Favorite: h.Favorite}
		if h.Grouped() {
			if _, ok := reg.Group(h.GroupID); ok {
				hm.Group = h.GroupID.String()
			}
		}
		// Forwards are recorded in order, all of them, as soon as one needs
		// the sidecar, so a reload can restore the list positions.
		needed := false
		for _, f := range h.PortForwards {
			if !f.Active || !f.IsValid() || f.Description != "" {
				needed = true
				break
			}
		}
		if needed {
			for _, f := range h.PortForwards {
				hm.Forwards = append(hm.Forwards, ForwardMeta{
					Directive:   f.ConfigString(),
					Description: f.Description,
					Active:      f.Active && f.IsValid(),
				})
			}
		}
		if !hm.empty() {
			m.Hosts[h.Alias] = hm
		}
	}
	return m
}

// apply overlays the sidecar on a freshly loaded registry. Entries for aliases
// or groups that no longer exist are ignored; an active forward that is no
// longer in the config file was removed there and is not resurrected.
func (m Metadata) apply(reg *registry.Registry) {
	for _, h := range reg.Hosts() {
		hm, ok := m.Hosts[h.Alias]
		if !ok {
			continue
		}
		if id, err := uuid.Parse(hm.Group); err == nil {
			if _, ok := reg.Group(id); ok {
				h.GroupID = id
			}
		}
		for _, t := range hm.Tags {
			h.AddTag(t)
		}
		h.Favorite = hm.Favorite
		if len(hm.Forwards) > 0 {
			h.PortForwards = mergeForwards(h.PortForwards, hm.Forwards)
		}
		_ = reg.UpdateHost(h)
	}
}

// mergeForwards orders the forwards read from the config file after the
// sidecar list. Recorded inactive rules are reinserted at their position;
// rules only in the file go last.
func mergeForwards(file []model.PortForward, recorded []ForwardMeta) []model.PortForward {
	used := make([]bool, len(file))
	out := make([]model.PortForward, 0, len(file)+len(recorded))
	for _, fm := range recorded {
		f, ok := config.ParsePortForward(fm.Directive)
		if !ok {
			continue
		}
		matched := false
		for i := range file {
			if !used[i] && file[i].Equivalent(f) {
				g := file[i]
				g.Description = fm.Description
				out = append(out, g)
				used[i] = true
				matched = true
				break
			}
		}
		if !matched && !fm.Active {
			f.Active = false
			f.Description = fm.Description
			out = append(out, f)
		}
	}
	for i, f := range file {
		if !used[i] {
			out = append(out, f)
		}
	}
	return out
}
