package config

import (
	"strings"
	"testing"

	"github.com/treykane/ssh-profiles/internal/model"
)

func TestFormat_SingleHostExact(t *testing.T) {
	h := model.NewHost("db1")
	h.HostName = "10.0.0.5"
	h.User = "root"
	got := Format([]model.Host{h})
	want := "Host db1\n  HostName 10.0.0.5\n  User root\n\n"
	if got != want {
		t.Fatalf("block mismatch\nwant=%q\n got=%q", want, got)
	}

	res := Parse(got)
	if len(res.Hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(res.Hosts))
	}
	back := res.Hosts[0]
	if back.Alias != "db1" || back.HostName != "10.0.0.5" || back.User != "root" || back.Port != 22 || back.IdentityFile != "" {
		t.Fatalf("unexpected round trip: %+v", back)
	}
}

func TestFormat_PortOmission(t *testing.T) {
	h := model.NewHost("web")
	h.HostName = "web.example.com"
	h.Port = 2222
	if got := Format([]model.Host{h}); !strings.Contains(got, "  Port 2222\n") {
		t.Fatalf("expected Port line, got %q", got)
	}
	h.Port = 22
	if got := Format([]model.Host{h}); strings.Contains(got, "Port") {
		t.Fatalf("expected default port to be omitted, got %q", got)
	}
}

func TestFormat_OptionsSortedAndTitleCased(t *testing.T) {
	h := model.NewHost("full")
	h.HostName = "full.example.com"
	h.IdentityFile = "~/.ssh/id_ed25519"
	h.Options["serveraliveinterval"] = "30"
	h.Options["forwardagent"] = "yes"
	got := FormatHostBlock(h, "ProxyJump bastion")
	want := "Host full\n" +
		"  HostName full.example.com\n" +
		"  IdentityFile ~/.ssh/id_ed25519\n" +
		"  ProxyJump bastion\n" +
		"  Forwardagent yes\n" +
		"  Serveraliveinterval 30\n"
	if got != want {
		t.Fatalf("block mismatch\nwant=%q\n got=%q", want, got)
	}
}

func TestFormat_SkipsIncompleteHosts(t *testing.T) {
	a := model.NewHost("")
	a.HostName = "orphan"
	b := model.NewHost("kept")
	got := Format([]model.Host{a, b})
	if strings.Contains(got, "orphan") || !strings.HasPrefix(got, "Host kept\n") {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestFormat_Idempotent(t *testing.T) {
	src := `Host a
  HostName a.example.com
  Port 2200
  User x
  IdentityFile /k
  ProxyCommand ssh -W %h:%p gw
  Compression yes
Host b
  HostName b.example.com
  Port 22
  LocalForward 8080 localhost:80
`
	directives := func(h model.Host) []string {
		var out []string
		for _, f := range h.PortForwards {
			out = append(out, f.ConfigString())
		}
		return out
	}
	once := FormatWith(Parse(src).Hosts, directives)
	twice := FormatWith(Parse(once).Hosts, directives)
	if once != twice {
		t.Fatalf("not idempotent\nonce=%q\ntwice=%q", once, twice)
	}
	if strings.Contains(once, "Port 22\n") {
		t.Fatalf("explicit default port must be dropped: %q", once)
	}
}

func TestValidateAlias(t *testing.T) {
	if err := ValidateAlias(""); err == nil {
		t.Fatal("expected error for empty alias")
	}
	for _, alias := range []string{"host *", "host?", "!host", "host\ttab", "a,b"} {
		if err := ValidateAlias(alias); err == nil {
			t.Errorf("expected error for alias %q", alias)
		}
	}
	if err := ValidateAlias("my-new-server"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}
