// Package util provides common utility functions and constants used across the
// ssh-profiles application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// DefaultSSHPort is the port OpenSSH assumes when a Host block carries no
	// Port directive. The serializer omits the Port line for this value and the
	// parser substitutes it for unparseable ports.
	DefaultSSHPort = 22

	// BackupSuffix is appended to the ssh config path to name the copy of the
	// previous content that is written before every save.
	BackupSuffix = ".backup"

	// ConfigFileMode is applied to the ssh config after every save. OpenSSH
	// refuses to read a config that is writable by group or others.
	ConfigFileMode = 0o600

	// TunnelProbeTimeout is the maximum time allowed for a single TCP health-check
	// probe against a tunnel's local endpoint.
	// Used by: internal/tunnel/manager.go (Snapshot).
	TunnelProbeTimeout = 500 * time.Millisecond

	// DefaultProbeTimeoutSeconds bounds the ConnectTimeout passed to ssh when
	// a host's connectivity is tested.
	DefaultProbeTimeoutSeconds = 5

	// DefaultRefreshSeconds is the fallback interval (in seconds) for the
	// dashboard's periodic tunnel status refresh.
	DefaultRefreshSeconds = 3

	// WatchDebounce collapses the burst of filesystem events an editor produces
	// while saving into a single reload.
	WatchDebounce = 300 * time.Millisecond
)
