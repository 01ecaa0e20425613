package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/ssh-profiles/internal/history"
	"github.com/treykane/ssh-profiles/internal/registry"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func setupSSHConfigForCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		t.Fatal(err)
	}
	cfg := strings.Join([]string{
		"Host api",
		"  HostName 127.0.0.1",
		"  User test",
		"  Port 22",
		"  LocalForward 127.0.0.1:9501 localhost:80",
		"",
	}, "\n")
	path := filepath.Join(sshDir, "config")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestListJSONOutput(t *testing.T) {
	setupSSHConfigForCLI(t)
	out := mustRun(t, "list", "--json")
	var hosts []map[string]any
	if err := json.Unmarshal([]byte(out), &hosts); err != nil {
		t.Fatalf("json parse: %v; output=%s", err, out)
	}
	if len(hosts) != 1 || hosts[0]["alias"] != "api" {
		t.Fatalf("unexpected hosts: %v", hosts)
	}
}

func TestListRecentOrdering(t *testing.T) {
	path := setupSSHConfigForCLI(t)
	cfg := "Host api\n  HostName 127.0.0.1\nHost db\n  HostName 127.0.0.1\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := history.Touch("db"); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "list", "--recent")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("unexpected output: %s", out)
	}
	if !strings.HasPrefix(lines[1], "db") {
		t.Fatalf("expected db first after header, got: %s", lines[1])
	}
}

func TestHostAddWritesConfigAndBackup(t *testing.T) {
	path := setupSSHConfigForCLI(t)
	before := readFile(t, path)

	mustRun(t, "host", "add", "db1", "--hostname", "10.0.0.5", "--user", "admin", "--port", "2222",
		"--identity", "~/.ssh/id_ed25519", "--option", "ServerAliveInterval=60")

	got := readFile(t, path)
	want := "Host db1\n  HostName 10.0.0.5\n  User admin\n  Port 2222\n  IdentityFile ~/.ssh/id_ed25519\n  Serveraliveinterval 60\n\n"
	if !strings.HasSuffix(got, want) {
		t.Fatalf("expected db1 block at the end, got:\n%s", got)
	}
	if strings.Contains(got, "Port 22\n") {
		t.Fatalf("explicit Port 22 should be dropped on save:\n%s", got)
	}
	if backup := readFile(t, path+".backup"); backup != before {
		t.Fatalf("backup should hold the previous content, got:\n%s", backup)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}

	if _, err := runCLI(t, "host", "add", "db1", "--hostname", "x"); err == nil {
		t.Fatal("expected duplicate alias to be rejected")
	}
	if _, err := runCLI(t, "host", "add", "bad alias"); err == nil {
		t.Fatal("expected alias with a space to be rejected")
	}
}

func TestHostEditRenameAndShow(t *testing.T) {
	setupSSHConfigForCLI(t)
	mustRun(t, "host", "edit", "api", "--alias", "api-prod", "--port", "2200")

	if _, err := runCLI(t, "show", "api"); !errors.Is(err, registry.ErrHostNotFound) {
		t.Fatalf("expected ErrHostNotFound for old alias, got %v", err)
	}
	out := mustRun(t, "show", "api-prod")
	for _, want := range []string{"Host api-prod\n", "  User test\n", "  Port 2200\n", "  LocalForward 127.0.0.1:9501 localhost:80\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestForwardLifecycle(t *testing.T) {
	path := setupSSHConfigForCLI(t)
	mustRun(t, "forward", "add", "api", "dynamic", "1080", "--description", "socks")
	mustRun(t, "forward", "add", "api", "remote", "9000", "localhost:3000")

	out := mustRun(t, "forward", "list", "api")
	for _, want := range []string{"-L 127.0.0.1:9501:localhost:80", "-D 1080", "-R 9000:localhost:3000", "socks"} {
		if !strings.Contains(out, want) {
			t.Fatalf("forward list missing %q:\n%s", want, out)
		}
	}

	mustRun(t, "forward", "toggle", "api", "0")
	cfg := readFile(t, path)
	if strings.Contains(cfg, "LocalForward") {
		t.Fatalf("disabled forward should not be written:\n%s", cfg)
	}
	if !strings.Contains(cfg, "DynamicForward 1080") || !strings.Contains(cfg, "RemoteForward 9000 localhost:3000") {
		t.Fatalf("expected active forwards in config:\n%s", cfg)
	}
	show := mustRun(t, "show", "api")
	if !strings.Contains(show, "# inactive: LocalForward 127.0.0.1:9501 localhost:80") {
		t.Fatalf("show should list the inactive forward:\n%s", show)
	}

	mustRun(t, "forward", "toggle", "api", "0")
	if !strings.Contains(readFile(t, path), "LocalForward 127.0.0.1:9501 localhost:80") {
		t.Fatal("re-enabled forward should be written again")
	}

	mustRun(t, "forward", "rm", "api", "1")
	if strings.Contains(readFile(t, path), "DynamicForward") {
		t.Fatal("removed forward still in config")
	}
	if _, err := runCLI(t, "forward", "add", "api", "local", "70000", "localhost:80"); err == nil {
		t.Fatal("expected out of range port to be rejected")
	}
	if _, err := runCLI(t, "forward", "rm", "api", "9"); !errors.Is(err, registry.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestJumpCommandAndCycle(t *testing.T) {
	path := setupSSHConfigForCLI(t)
	mustRun(t, "host", "add", "bastion", "--hostname", "bastion.example.com", "--user", "ops")
	mustRun(t, "jump", "add", "api", "bastion")
	mustRun(t, "jump", "add", "api", "jump@10.0.0.9:2222")

	if !strings.Contains(readFile(t, path), "  ProxyJump bastion,jump@10.0.0.9:2222\n") {
		t.Fatalf("expected ProxyJump line:\n%s", readFile(t, path))
	}
	out := mustRun(t, "command", "api")
	want := "ssh api -L 127.0.0.1:9501:localhost:80 -J bastion,jump@10.0.0.9:2222\n"
	if out != want {
		t.Fatalf("want %q, got %q", want, out)
	}

	if _, err := runCLI(t, "jump", "add", "bastion", "api"); !errors.Is(err, registry.ErrJumpCycle) {
		t.Fatalf("expected ErrJumpCycle, got %v", err)
	}
	if strings.Contains(readFile(t, path), "Host bastion\n  HostName bastion.example.com\n  User ops\n  ProxyJump") {
		t.Fatal("rejected cycle must not be saved")
	}

	mustRun(t, "jump", "rm", "api", "0")
	out = mustRun(t, "jump", "list", "api")
	if strings.Contains(out, "bastion") || !strings.Contains(out, "jump@10.0.0.9:2222") {
		t.Fatalf("unexpected chain after rm:\n%s", out)
	}
}

func TestGroupsAndFavorites(t *testing.T) {
	setupSSHConfigForCLI(t)
	mustRun(t, "host", "add", "db", "--hostname", "10.0.0.2")
	mustRun(t, "group", "init")
	mustRun(t, "group", "add", "Lab", "--color", "purple")
	mustRun(t, "host", "edit", "db", "--group", "lab")
	mustRun(t, "host", "fav", "api")
	mustRun(t, "host", "tag", "api", "web", "prod")

	out := mustRun(t, "list", "--group", "Lab")
	if !strings.Contains(out, "db") || strings.Contains(out, "api") {
		t.Fatalf("unexpected group listing:\n%s", out)
	}
	out = mustRun(t, "list", "--favorites")
	if !strings.Contains(out, "*api") || strings.Contains(out, "db ") {
		t.Fatalf("unexpected favorites listing:\n%s", out)
	}
	out = mustRun(t, "list", "--search", "prod")
	if !strings.Contains(out, "api") {
		t.Fatalf("expected tag search to match api:\n%s", out)
	}

	groups := mustRun(t, "group", "list")
	for _, want := range []string{"Production", "Lab", "(ungrouped)"} {
		if !strings.Contains(groups, want) {
			t.Fatalf("group list missing %q:\n%s", want, groups)
		}
	}

	mustRun(t, "group", "rm", "lab")
	out = mustRun(t, "list", "--json")
	if strings.Contains(out, "Lab") {
		t.Fatalf("removed group still referenced:\n%s", out)
	}
	if _, err := runCLI(t, "list", "--group", "lab"); !errors.Is(err, registry.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestDiffShowsPendingNormalization(t *testing.T) {
	setupSSHConfigForCLI(t)
	out := mustRun(t, "diff")
	if !strings.Contains(out, "-  Port 22") {
		t.Fatalf("expected diff to drop Port 22:\n%s", out)
	}
	mustRun(t, "host", "fav", "api")
	if out := mustRun(t, "diff"); strings.TrimSpace(out) != "no changes" {
		t.Fatalf("expected no changes after save, got:\n%s", out)
	}
}

func TestDoctorJSONOutput(t *testing.T) {
	setupSSHConfigForCLI(t)
	out := mustRun(t, "doctor", "--json")
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid doctor json: %v", err)
	}
	if _, ok := payload["issues"]; !ok {
		t.Fatalf("expected issues key in doctor output: %s", out)
	}
	if !strings.Contains(out, "Port 22") {
		t.Fatalf("expected explicit Port 22 lint issue: %s", out)
	}
}

func TestEventsJSONOutput(t *testing.T) {
	setupSSHConfigForCLI(t)
	mustRun(t, "host", "add", "db", "--hostname", "10.0.0.2")
	mustRun(t, "host", "fav", "api")

	out := mustRun(t, "events", "--host", "db", "--json")
	var payload []map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("invalid events json: %v; output=%s", err, out)
	}
	if len(payload) != 1 || payload[0]["kind"] != "host_added" {
		t.Fatalf("unexpected events: %v", payload)
	}

	out = mustRun(t, "events", "--kind", "config_saved", "--json")
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload) != 2 {
		t.Fatalf("expected one config_saved per save, got %v", payload)
	}
}

func TestTunnelDownWithoutTunnel(t *testing.T) {
	setupSSHConfigForCLI(t)
	if _, err := runCLI(t, "tunnel", "down", "api"); err == nil {
		t.Fatal("expected error when no tunnel is running")
	}
	out := mustRun(t, "tunnel", "status", "--json")
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty status, got %s", out)
	}
}

func TestParseForwardArgs(t *testing.T) {
	tests := []struct {
		args []string
		want string
		ok   bool
	}{
		{[]string{"local", "8080", "localhost:80"}, "-L 8080:localhost:80", true},
		{[]string{"L", "127.0.0.1:8080", "db:5432"}, "-L 127.0.0.1:8080:db:5432", true},
		{[]string{"rf", "9000", "localhost:3000"}, "-R 9000:localhost:3000", true},
		{[]string{"dynamic", "1080"}, "-D 1080", true},
		{[]string{"LocalForward", "8080", "localhost:80"}, "-L 8080:localhost:80", true},
		{[]string{"local", "8080"}, "", false},
		{[]string{"tunnel", "8080", "localhost:80"}, "", false},
	}
	for _, tt := range tests {
		got, err := parseForwardArgs(tt.args)
		if (err == nil) != tt.ok {
			t.Fatalf("%v: ok=%v err=%v", tt.args, tt.ok, err)
		}
		if tt.ok && got.SSHArgument() != tt.want {
			t.Fatalf("%v: want %q, got %q", tt.args, tt.want, got.SSHArgument())
		}
	}
}
