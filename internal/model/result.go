package model

import (
	"fmt"
	"time"
)

// FailureKind classifies a failed connectivity test.
type FailureKind string

const (
	FailurePermissionDenied  FailureKind = "permission_denied"
	FailureConnectionTimeout FailureKind = "connection_timeout"
	FailureUnknownHost       FailureKind = "unknown_host"
	FailureKeyFileNotFound   FailureKind = "key_file_not_found"
	FailureKeyFileWrongPerms FailureKind = "key_file_wrong_permissions"
	FailureUnknown           FailureKind = "unknown"
)

// TestResult is the outcome of a connectivity probe. Exactly one of the two
// shapes is meaningful: OK with Latency, or a Failure with its Detail (the key
// path for the key-file kinds, the raw message for FailureUnknown).
type TestResult struct {
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ns,omitempty"`
	Failure FailureKind   `json:"failure,omitempty"`
	Detail  string        `json:"detail,omitempty"`
	At      time.Time     `json:"at"`
}

func Success(latency time.Duration) TestResult {
	return TestResult{OK: true, Latency: latency, At: time.Now()}
}

func Failure(kind FailureKind, detail string) TestResult {
	return TestResult{Failure: kind, Detail: detail, At: time.Now()}
}

func (r TestResult) String() string {
	if r.OK {
		return fmt.Sprintf("connected in %.2fs", r.Latency.Seconds())
	}
	switch r.Failure {
	case FailurePermissionDenied:
		return "server rejected the connection, check the key configuration"
	case FailureConnectionTimeout:
		return "connection timed out, check the host address and network"
	case FailureUnknownHost:
		return "could not resolve the host address"
	case FailureKeyFileNotFound:
		return "key file not found: " + r.Detail
	case FailureKeyFileWrongPerms:
		return "key file permissions are too open: " + r.Detail + " (use 600)"
	default:
		return "connection failed: " + r.Detail
	}
}
