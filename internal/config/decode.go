package config

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/treykane/ssh-profiles/internal/model"
	"github.com/treykane/ssh-profiles/internal/util"
)

var forwardKinds = map[string]model.ForwardKind{
	"localforward":   model.ForwardLocal,
	"lf":             model.ForwardLocal,
	"remoteforward":  model.ForwardRemote,
	"rf":             model.ForwardRemote,
	"dynamicforward": model.ForwardDynamic,
	"df":             model.ForwardDynamic,
}

// IsForwardKey reports whether key names a forwarding directive, including
// the two-letter aliases lf, rf and df.
func IsForwardKey(key string) bool {
	_, ok := forwardKinds[strings.ToLower(key)]
	return ok
}

// CanonicalForwardKey maps lf, rf and df (any case) to their full directive
// names. Other keys are returned unchanged.
func CanonicalForwardKey(key string) string {
	if kind, ok := forwardKinds[strings.ToLower(key)]; ok {
		return kind.Directive()
	}
	return key
}

// ParsePortForward decodes one forwarding directive such as
// "LocalForward 8080 localhost:80" or "df 1080". The listening side may carry
// a bind address ("127.0.0.1:8080"). Local and remote rules need a host:port
// destination as their second argument. ok is false for anything that does
// not decode or carries a port outside 1-65535; the parser keeps such lines
// as opaque options.
func ParsePortForward(line string) (fwd model.PortForward, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return model.PortForward{}, false
	}
	kind, known := forwardKinds[strings.ToLower(fields[0])]
	if !known {
		return model.PortForward{}, false
	}
	bind, port, ok := parseListen(fields[1])
	if !ok {
		return model.PortForward{}, false
	}
	fwd = model.PortForward{Kind: kind, BindAddress: bind, LocalPort: port, Active: true}
	if kind == model.ForwardDynamic {
		return fwd, fwd.IsValid()
	}
	if len(fields) < 3 {
		return model.PortForward{}, false
	}
	host, rport, ok := util.SplitHostPort(fields[2])
	if !ok || host == "" {
		return model.PortForward{}, false
	}
	fwd.RemoteHost = host
	fwd.RemotePort = rport
	if !fwd.IsValid() {
		return model.PortForward{}, false
	}
	return fwd, true
}

// parseListen accepts "port" or "bind:port".
func parseListen(s string) (bind string, port int, ok bool) {
	if p, err := strconv.Atoi(s); err == nil {
		return "", p, true
	}
	host, p, ok := util.SplitHostPort(s)
	if !ok {
		return "", 0, false
	}
	return host, p, true
}

// ParsePort returns the integer value of a Port directive, or 22 when the
// value is not an integer.
func ParsePort(value string) int {
	p, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return util.DefaultSSHPort
	}
	return p
}

// TitleCase renders an opaque option key for output: first letter upper,
// the rest lower ("serveraliveinterval" -> "Serveraliveinterval"). OpenSSH
// matches keywords case-insensitively.
func TitleCase(key string) string {
	if key == "" {
		return key
	}
	r, size := utf8.DecodeRuneInString(key)
	return string(unicode.ToUpper(r)) + strings.ToLower(key[size:])
}
