// Package events defines the registry change notifications and the local
// journal they can be appended to.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/appconfig"
)

// Kind names what changed.
type Kind string

const (
	HostAdded       Kind = "host_added"
	HostUpdated     Kind = "host_updated"
	HostRemoved     Kind = "host_removed"
	HostMoved       Kind = "host_moved"
	FavoriteChanged Kind = "favorite_changed"
	TagsChanged     Kind = "tags_changed"
	JumpChanged     Kind = "jump_changed"
	ForwardChanged  Kind = "forward_changed"
	TestStarted     Kind = "test_started"
	TestRecorded    Kind = "test_recorded"
	GroupAdded      Kind = "group_added"
	GroupUpdated    Kind = "group_updated"
	GroupRemoved    Kind = "group_removed"
	ConfigSaved     Kind = "config_saved"
	TunnelStarted   Kind = "tunnel_started"
	TunnelStopped   Kind = "tunnel_stopped"
	TunnelFailed    Kind = "tunnel_failed"
)

// Transient reports whether the kind only affects runtime probe state.
func (k Kind) Transient() bool {
	return k == TestStarted
}

// Change is one mutation of the registry (or a related lifecycle step),
// persisted as a line of events.jsonl.
type Change struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	HostID    uuid.UUID `json:"host_id,omitzero"`
	GroupID   uuid.UUID `json:"group_id,omitzero"`
	Alias     string    `json:"alias,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	Alias string
	Kind  Kind
	Since time.Time
	Limit int
}

// Store provides append/read access to the local event journal.
type Store struct {
	path string
}

// NewStore returns a journal at <config dir>/events.jsonl.
func NewStore() *Store {
	return &Store{}
}

// NewStoreAt returns a journal backed by path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) filePath() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	return appconfig.EventsFilePath()
}

// Append writes a single change as one JSON line.
func (s *Store) Append(c Change) error {
	path, err := s.filePath()
	if err != nil {
		return err
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Subscriber returns a callback suitable for registry subscriptions. Append
// failures are logged and otherwise ignored; transient probe changes are not
// journaled.
func (s *Store) Subscriber(logger *slog.Logger) func(Change) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c Change) {
		if c.Kind.Transient() {
			return
		}
		if err := s.Append(c); err != nil {
			logger.Warn("journal append failed", "kind", c.Kind, "error", err)
		}
	}
}

// Read returns changes in append order, filtered by query, with optional limit.
func (s *Store) Read(q Query) ([]Change, error) {
	path, err := s.filePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Change
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var c Change
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			continue
		}
		if !matches(c, q) {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(c Change, q Query) bool {
	if strings.TrimSpace(q.Alias) != "" && c.Alias != q.Alias {
		return false
	}
	if q.Kind != "" && c.Kind != q.Kind {
		return false
	}
	if !q.Since.IsZero() && c.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
