package store

import (
	"os"
	"strings"
	"testing"

	"github.com/treykane/ssh-profiles/internal/model"
)

func TestMetadata_RoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	content := "Host web\n  HostName web.example.com\n  LocalForward 8080 localhost:80\nHost db\n  HostName db.example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	reg := s.Load()
	prodID, err := reg.AddGroup(model.Group{Name: "Production", Color: model.ColorRed, Expanded: true})
	if err != nil {
		t.Fatal(err)
	}
	web, _ := reg.HostByAlias("web")
	if err := reg.MoveHost(web.ID, prodID); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetFavorite(web.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetTags(web.ID, []string{"frontend", "eu"}); err != nil {
		t.Fatal(err)
	}
	fwd := web.PortForwards[0]
	fwd.Description = "admin UI"
	if err := reg.UpdatePortForward(web.ID, 0, fwd); err != nil {
		t.Fatal(err)
	}
	socks := model.PortForward{Kind: model.ForwardDynamic, LocalPort: 1080, Description: "socks"}
	if err := reg.AddPortForward(web.ID, socks); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(reg); err != nil {
		t.Fatal(err)
	}

	live, _ := os.ReadFile(path)
	if strings.Contains(string(live), "DynamicForward") {
		t.Fatalf("inactive forward must not reach the ssh config: %q", live)
	}
	if got := mode(t, s.MetadataPath()); got != 0o600 {
		t.Fatalf("expected metadata 0600, got %#o", got)
	}

	again := s.Load()
	groups := again.Groups()
	if len(groups) != 1 || groups[0].ID != prodID || groups[0].Color != model.ColorRed {
		t.Fatalf("unexpected groups: %+v", groups)
	}
	w, _ := again.HostByAlias("web")
	if w.GroupID != prodID || !w.Favorite || strings.Join(w.Tags, ",") != "frontend,eu" {
		t.Fatalf("metadata not restored: %+v", w)
	}
	if len(w.PortForwards) != 2 {
		t.Fatalf("expected active and inactive forward, got %+v", w.PortForwards)
	}
	if f := w.PortForwards[0]; !f.Active || f.Description != "admin UI" {
		t.Fatalf("unexpected active forward: %+v", f)
	}
	if f := w.PortForwards[1]; f.Active || f.Kind != model.ForwardDynamic || f.Description != "socks" {
		t.Fatalf("unexpected inactive forward: %+v", f)
	}
	d, _ := again.HostByAlias("db")
	if d.Grouped() || d.Favorite || len(d.Tags) != 0 {
		t.Fatalf("db must carry no metadata: %+v", d)
	}
}

func TestMetadata_ForwardRemovedFromFileStaysRemoved(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("Host web\n  HostName w\n  LocalForward 8080 localhost:80\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	reg := s.Load()
	web, _ := reg.HostByAlias("web")
	f := web.PortForwards[0]
	f.Description = "note"
	_ = reg.UpdatePortForward(web.ID, 0, f)
	if err := s.Save(reg); err != nil {
		t.Fatal(err)
	}

	// Edited by hand: the forward is gone.
	if err := os.WriteFile(path, []byte("Host web\n  HostName w\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, _ := s.Load().HostByAlias("web")
	if len(w.PortForwards) != 0 {
		t.Fatalf("expected no forwards, got %+v", w.PortForwards)
	}
}

func TestMetadata_CorruptSidecarIsIgnored(t *testing.T) {
	s, path := newTestStore(t)
	if err := os.WriteFile(path, []byte("Host web\n  HostName w\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.MetadataPath(), []byte("groups: [unterminated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	reg := s.Load()
	if reg.Len() != 1 {
		t.Fatalf("expected host to load without metadata, got %d", reg.Len())
	}
}

func TestMetadata_DisabledForwardKeepsPosition(t *testing.T) {
	s, path := newTestStore(t)
	content := "Host web\n  HostName w\n  LocalForward 8080 localhost:80\n  LocalForward 8443 localhost:443\n  DynamicForward 1080\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	reg := s.Load()
	web, _ := reg.HostByAlias("web")
	if err := reg.SetForwardActive(web.ID, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(reg); err != nil {
		t.Fatal(err)
	}

	w, _ := s.Load().HostByAlias("web")
	var got []string
	for _, f := range w.PortForwards {
		got = append(got, f.SSHArgument())
	}
	want := "-L 8080:localhost:80,-L 8443:localhost:443,-D 1080"
	if strings.Join(got, ",") != want {
		t.Fatalf("want %s, got %s", want, strings.Join(got, ","))
	}
	if w.PortForwards[0].Active || !w.PortForwards[1].Active {
		t.Fatalf("unexpected active flags: %+v", w.PortForwards)
	}
}
