package model

import (
	"fmt"
	"strconv"

	"github.com/treykane/ssh-profiles/internal/util"
)

// ForwardKind is the direction of a port forward.
type ForwardKind string

const (
	ForwardLocal   ForwardKind = "local"
	ForwardRemote  ForwardKind = "remote"
	ForwardDynamic ForwardKind = "dynamic"
)

// Flag returns the ssh command-line flag for the kind.
func (k ForwardKind) Flag() string {
	switch k {
	case ForwardRemote:
		return "-R"
	case ForwardDynamic:
		return "-D"
	default:
		return "-L"
	}
}

// Directive returns the ssh_config directive name for the kind.
func (k ForwardKind) Directive() string {
	switch k {
	case ForwardRemote:
		return "RemoteForward"
	case ForwardDynamic:
		return "DynamicForward"
	default:
		return "LocalForward"
	}
}

// PortForward is one forwarding rule attached to a host.
//
// For remote forwards LocalPort is the port that listens on the remote side
// and RemoteHost:RemotePort is the destination reached from the local side,
// matching the argument order of ssh -R.
type PortForward struct {
	Kind        ForwardKind `json:"kind"`
	BindAddress string      `json:"bind_address,omitempty"`
	LocalPort   int         `json:"local_port"`
	RemoteHost  string      `json:"remote_host,omitempty"`
	RemotePort  int         `json:"remote_port,omitempty"`
	Description string      `json:"description,omitempty"`
	Active      bool        `json:"active"`
}

// IsValid holds when the listening port is in range and, for local and remote
// forwards, the destination port is too. Dynamic forwards ignore RemotePort.
func (f PortForward) IsValid() bool {
	if !util.PortInRange(f.LocalPort) {
		return false
	}
	if f.Kind == ForwardDynamic {
		return true
	}
	return util.PortInRange(f.RemotePort)
}

// listenSpec renders [bind:]port.
func (f PortForward) listenSpec() string {
	if f.BindAddress == "" {
		return strconv.Itoa(f.LocalPort)
	}
	return util.JoinHostPort(f.BindAddress, f.LocalPort)
}

func (f PortForward) target() string {
	return util.JoinHostPort(f.RemoteHost, f.RemotePort)
}

// SSHArgs returns the rule as two argv elements, e.g. ["-L", "8080:localhost:80"].
func (f PortForward) SSHArgs() []string {
	if f.Kind == ForwardDynamic {
		return []string{"-D", f.listenSpec()}
	}
	return []string{f.Kind.Flag(), f.listenSpec() + ":" + f.target()}
}

// SSHArgument renders the command-line form, e.g. "-L 8080:localhost:80".
func (f PortForward) SSHArgument() string {
	args := f.SSHArgs()
	return args[0] + " " + args[1]
}

// ConfigString renders the ssh_config directive, e.g.
// "LocalForward 8080 localhost:80".
func (f PortForward) ConfigString() string {
	if f.Kind == ForwardDynamic {
		return "DynamicForward " + f.listenSpec()
	}
	return f.Kind.Directive() + " " + f.listenSpec() + " " + f.target()
}

// Equivalent compares the rule itself, ignoring description and active flag.
func (f PortForward) Equivalent(o PortForward) bool {
	return f.Kind == o.Kind && f.BindAddress == o.BindAddress && f.LocalPort == o.LocalPort &&
		f.RemoteHost == o.RemoteHost && f.RemotePort == o.RemotePort
}

func (f PortForward) DisplayDescription() string {
	if f.Description != "" {
		return f.Description
	}
	switch f.Kind {
	case ForwardRemote:
		return fmt.Sprintf("remote:%d <- %s", f.LocalPort, f.target())
	case ForwardDynamic:
		return fmt.Sprintf("SOCKS proxy localhost:%d", f.LocalPort)
	default:
		return fmt.Sprintf("local:%d -> %s", f.LocalPort, f.target())
	}
}
