package model

import (
	"time"

	"github.com/treykane/ssh-profiles/internal/util"
)

type TunnelState string

const (
	TunnelDown     TunnelState = "down"
	TunnelStarting TunnelState = "starting"
	TunnelUp       TunnelState = "up"
	TunnelError    TunnelState = "error"
	TunnelStopping TunnelState = "stopping"
)

// TunnelRuntime is the live state of one background "ssh -N" process. The
// process carries every active forward of a host, as written in its config
// block.
type TunnelRuntime struct {
	ID        string      `json:"id"`
	HostAlias string      `json:"host_alias"`
	Forwards  []string    `json:"forwards"`
	Local     string      `json:"local,omitempty"`
	PID       int         `json:"pid,omitempty"`
	State     TunnelState `json:"state"`
	StartedAt time.Time   `json:"started_at"`
	UptimeSec int64       `json:"uptime_seconds"`
	LatencyMS int64       `json:"latency_ms"`
	LastError string      `json:"last_error,omitempty"`
}

// ProbeAddr returns the local listening address of the first local or dynamic
// forward, which is what a health check can dial. Remote forwards listen on
// the server and yield "".
func ProbeAddr(forwards []PortForward) string {
	for _, f := range forwards {
		if f.Kind == ForwardRemote {
			continue
		}
		bind := f.BindAddress
		if bind == "" || bind == "*" || bind == "0.0.0.0" {
			bind = "127.0.0.1"
		}
		return util.JoinHostPort(bind, f.LocalPort)
	}
	return ""
}
