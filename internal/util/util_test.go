package util

import (
	"path/filepath"
	"testing"
)

func TestValidatePortBounds(t *testing.T) {
	for _, p := range []int{1, 22, 65535} {
		if err := ValidatePort(p); err != nil {
			t.Errorf("port %d: unexpected error %v", p, err)
		}
	}
	for _, p := range []int{0, -1, 65536} {
		if err := ValidatePort(p); err == nil {
			t.Errorf("port %d: expected error", p)
		}
	}
}

func TestHostPortRoundTrip(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 80, "localhost:80"},
		{"::1", 5432, "[::1]:5432"},
	}
	for _, tt := range tests {
		got := JoinHostPort(tt.host, tt.port)
		if got != tt.want {
			t.Fatalf("join: want %q, got %q", tt.want, got)
		}
		h, p, ok := SplitHostPort(got)
		if !ok || h != tt.host || p != tt.port {
			t.Fatalf("split %q: got %q %d %v", got, h, p, ok)
		}
	}
	if _, _, ok := SplitHostPort("localhost"); ok {
		t.Fatal("expected missing port to fail")
	}
	if _, _, ok := SplitHostPort("localhost:http"); ok {
		t.Fatal("expected non-numeric port to fail")
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := ExpandHome("~/.ssh/config"); got != filepath.Join(home, ".ssh", "config") {
		t.Fatalf("unexpected expansion: %s", got)
	}
	if got := ExpandHome("/etc/ssh/ssh_config"); got != "/etc/ssh/ssh_config" {
		t.Fatalf("absolute path changed: %s", got)
	}
	if got := ExpandHome("~"); got != home {
		t.Fatalf("bare tilde: %s", got)
	}
}
