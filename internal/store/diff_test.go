package store

import (
	"os"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	s, path := newTestStore(t)
	content := "Host web\n  HostName web.example.com\n  Port 22\n\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	reg := s.Load()

	text, err := s.Diff(reg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "-  Port 22\n") {
		t.Fatalf("expected dropped Port line in diff, got %q", text)
	}
	if !strings.HasPrefix(text, "--- "+path) {
		t.Fatalf("unexpected diff header: %q", text)
	}

	if err := s.Save(reg); err != nil {
		t.Fatal(err)
	}
	text, err = s.Diff(reg)
	if err != nil {
		t.Fatal(err)
	}
	if text != "" {
		t.Fatalf("expected no diff after save, got %q", text)
	}
}

func TestDiff_MissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	reg := s.Load()
	mustAdd(t, reg, "db1", "10.0.0.5")
	text, err := s.Diff(reg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "+Host db1\n") {
		t.Fatalf("expected added block, got %q", text)
	}
}
