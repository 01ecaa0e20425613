// Package store loads the ssh config file into a registry and writes it back
// with a backup, an atomic replace and 0600 permissions.
package store

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/treykane/ssh-profiles/internal/config"
	"github.com/treykane/ssh-profiles/internal/events"
	"github.com/treykane/ssh-profiles/internal/registry"
	"github.com/treykane/ssh-profiles/internal/security"
	"github.com/treykane/ssh-profiles/internal/util"
)

// Store persists one ssh config file and its metadata sidecar. Callers must
// not run two saves for the same path at once.
type Store struct {
	path     string
	metaPath string
	logger   *slog.Logger

	// savedAt is the unix nano time of the last successful save, read by
	// Watch to ignore its own writes.
	savedAt atomic.Int64
}

type Option func(*Store)

// WithMetadataPath sets the sidecar file holding groups, tags, favorites and
// forward notes. Without it no sidecar is read or written.
func WithMetadataPath(path string) Option {
	return func(s *Store) { s.metaPath = util.ExpandHome(path) }
}

// WithLogger sets the logger used for load and backup failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a store for path; a leading ~ is expanded.
func New(path string, opts ...Option) *Store {
	s := &Store{path: util.ExpandHome(path), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string         { return s.path }
func (s *Store) BackupPath() string   { return s.path + util.BackupSuffix }
func (s *Store) MetadataPath() string { return s.metaPath }

// Load reads the config file into a new registry. It never fails: a missing
// file gives an empty registry, and read or metadata errors are logged and
// degrade to an empty (or metadata-free) registry.
func (s *Store) Load() *registry.Registry {
	res, err := config.ParseFile(s.path)
	if err != nil {
		s.logger.Error("load ssh config", "path", s.path, "error", err)
		return registry.New()
	}
	for _, tok := range res.Skipped {
		s.logger.Debug("dropping directive before first Host", "path", s.path, "line", tok.Line, "key", tok.Key)
	}

	meta, err := s.readMetadata()
	if err != nil {
		s.logger.Warn("load metadata", "path", s.metaPath, "error", err)
		meta = Metadata{}
	}
	reg := registry.Restore(res.Hosts, meta.Groups)
	reg.BindDirectives()
	meta.apply(reg)
	s.logger.Debug("loaded ssh config", "path", s.path, "hosts", reg.Len(), "groups", len(meta.Groups))
	return reg
}

// Save writes reg to the config file:
//
//  1. the current file, if any, is copied to <path>.backup (best effort)
//  2. the registry is rendered
//  3. the text goes to a temp file in the same directory, which is synced
//     and renamed over the target
//  4. the target is chmod'ed to 0600
//
// The metadata sidecar is then written the same way. On failure the previous
// file is left as it was and a *security.FileError wrapping the cause is returned.
func (s *Store) Save(reg *registry.Registry) error {
	if err := s.backup(); err != nil {
		s.logger.Warn("backup ssh config", "path", s.BackupPath(), "error", err)
	}
	if err := writeAtomic(s.path, []byte(reg.Render())); err != nil {
		s.logger.Error("save ssh config", "path", s.path, "error", err)
		return security.NewFileError("could not save the ssh config", "write", s.path, err)
	}
	if s.metaPath != "" {
		b, err := marshalMetadata(collectMetadata(reg))
		if err == nil {
			err = writeAtomic(s.metaPath, b)
		}
		if err != nil {
			s.logger.Error("save metadata", "path", s.metaPath, "error", err)
			return security.NewFileError("ssh config saved, but groups and tags could not be saved", "write", s.metaPath, err)
		}
	}
	s.savedAt.Store(time.Now().UnixNano())
	reg.Notify(events.ConfigSaved, s.path)
	return nil
}

// backup copies the current file to BackupPath, replacing any older backup.
// The old backup stays intact until the new copy is complete.
func (s *Store) backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return writeAtomic(s.BackupPath(), data)
}

// writeAtomic replaces path with data via a synced temp file and a rename,
// then sets 0600. The rename is atomic on POSIX filesystems.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	// Some platforms apply default permissions on create, so this runs last.
	return os.Chmod(path, util.ConfigFileMode)
}
