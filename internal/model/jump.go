package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/util"
)

// JumpKind selects which fields of a JumpHost are meaningful.
type JumpKind string

const (
	// JumpReference points at another registry host by id.
	JumpReference JumpKind = "reference"
	// JumpManual carries its own endpoint.
	JumpManual JumpKind = "manual"
)

// JumpHost is one hop of a ProxyJump chain.
//
// A reference hop keeps Alias as the fallback token used when the referenced
// host no longer exists.
type JumpHost struct {
	Kind             JumpKind  `json:"kind"`
	ReferencedHostID uuid.UUID `json:"referenced_host_id,omitempty"`
	Alias            string    `json:"alias,omitempty"`
	HostName         string    `json:"host_name,omitempty"`
	User             string    `json:"user,omitempty"`
	Port             int       `json:"port,omitempty"`
	IdentityFile     string    `json:"identity_file,omitempty"`
}

// ReferenceJump builds a reference hop to target.
func ReferenceJump(target Host) JumpHost {
	return JumpHost{Kind: JumpReference, ReferencedHostID: target.ID, Alias: target.Alias}
}

// ManualJump builds a manual hop. A zero port means 22.
func ManualJump(user, hostname string, port int) JumpHost {
	if port == 0 {
		port = 22
	}
	return JumpHost{Kind: JumpManual, User: user, HostName: hostname, Port: port}
}

// IsValid reports whether the hop can be rendered. Reference hops also need
// a registry lookup to know whether they resolve; a non-empty fallback alias
// is enough on its own.
func (j JumpHost) IsValid() bool {
	switch j.Kind {
	case JumpReference:
		return j.ReferencedHostID != uuid.Nil || j.Alias != ""
	case JumpManual:
		return j.HostName != ""
	default:
		return false
	}
}

// ManualSpec renders user@hostname:port, omitting user@ when empty and :port
// when it is 22. IPv6 hostnames are always bracketed.
func (j JumpHost) ManualSpec() string {
	s := j.HostName
	switch {
	case j.Port != 0 && j.Port != 22:
		s = util.JoinHostPort(j.HostName, j.Port)
	case strings.Contains(s, ":"):
		s = "[" + s + "]"
	}
	if j.User != "" {
		s = j.User + "@" + s
	}
	return s
}

func (j JumpHost) DisplayName() string {
	if j.Kind == JumpReference {
		return j.Alias
	}
	if j.Alias != "" {
		return j.Alias
	}
	switch {
	case j.User != "" && j.HostName != "":
		return j.User + "@" + j.HostName
	case j.HostName != "":
		return j.HostName
	default:
		return "unnamed jump host"
	}
}
