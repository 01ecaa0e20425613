package config

import (
	"testing"

	"github.com/treykane/ssh-profiles/internal/model"
)

func TestParsePortForward_AliasEquivalence(t *testing.T) {
	short, ok := ParsePortForward("lf 8080 localhost:80")
	if !ok {
		t.Fatal("expected lf to parse")
	}
	long, ok := ParsePortForward("LocalForward 8080 localhost:80")
	if !ok {
		t.Fatal("expected LocalForward to parse")
	}
	if short != long {
		t.Fatalf("alias and canonical forms differ:\n short=%+v\n  long=%+v", short, long)
	}
}

func TestParsePortForward(t *testing.T) {
	tests := []struct {
		name string
		line string
		want model.PortForward
		ok   bool
	}{
		{
			name: "remote",
			line: "RemoteForward 9000 localhost:3000",
			want: model.PortForward{Kind: model.ForwardRemote, LocalPort: 9000, RemoteHost: "localhost", RemotePort: 3000, Active: true},
			ok:   true,
		},
		{
			name: "rf alias",
			line: "rf 9000 localhost:3000",
			want: model.PortForward{Kind: model.ForwardRemote, LocalPort: 9000, RemoteHost: "localhost", RemotePort: 3000, Active: true},
			ok:   true,
		},
		{
			name: "dynamic",
			line: "df 1080",
			want: model.PortForward{Kind: model.ForwardDynamic, LocalPort: 1080, Active: true},
			ok:   true,
		},
		{
			name: "bind address",
			line: "LocalForward 127.0.0.1:8080 web:80",
			want: model.PortForward{Kind: model.ForwardLocal, BindAddress: "127.0.0.1", LocalPort: 8080, RemoteHost: "web", RemotePort: 80, Active: true},
			ok:   true,
		},
		{name: "missing destination", line: "LocalForward 8080", ok: false},
		{name: "destination without port", line: "LocalForward 8080 localhost", ok: false},
		{name: "non-numeric port", line: "lf abc localhost:80", ok: false},
		{name: "zero listen port", line: "LocalForward 0 localhost:80", ok: false},
		{name: "destination port out of range", line: "LocalForward 8080 localhost:99999", ok: false},
		{name: "dynamic port out of range", line: "DynamicForward 70000", ok: false},
		{name: "unknown key", line: "ForwardAgent yes", ok: false},
		{name: "empty", line: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePortForward(tt.line)
			if ok != tt.ok {
				t.Fatalf("ok: want %v, got %v (%+v)", tt.ok, ok, got)
			}
			if ok && got != tt.want {
				t.Fatalf("want %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParsePortForward_RoundTripsConfigString(t *testing.T) {
	for _, line := range []string{
		"LocalForward 8080 localhost:80",
		"RemoteForward 0.0.0.0:9000 127.0.0.1:3000",
		"DynamicForward 1080",
	} {
		f, ok := ParsePortForward(line)
		if !ok {
			t.Fatalf("parse %q failed", line)
		}
		if got := f.ConfigString(); got != line {
			t.Fatalf("want %q, got %q", line, got)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"serveraliveinterval": "Serveraliveinterval",
		"ProxyJump":           "Proxyjump",
		"x":                   "X",
		"":                    "",
	}
	for in, want := range tests {
		if got := TitleCase(in); got != want {
			t.Errorf("TitleCase(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestParsePort(t *testing.T) {
	if ParsePort("2222") != 2222 || ParsePort("x") != 22 || ParsePort("") != 22 {
		t.Fatal("unexpected port parsing")
	}
}

func TestCanonicalForwardKey(t *testing.T) {
	tests := map[string]string{
		"lf":                  "LocalForward",
		"RF":                  "RemoteForward",
		"df":                  "DynamicForward",
		"localforward":        "LocalForward",
		"ServerAliveCountMax": "ServerAliveCountMax",
	}
	for in, want := range tests {
		if got := CanonicalForwardKey(in); got != want {
			t.Errorf("CanonicalForwardKey(%q): want %q, got %q", in, want, got)
		}
	}
}
