package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/treykane/ssh-profiles/internal/model"
)

func TestResolveChain_ReferenceAndManual(t *testing.T) {
	r := New()
	bastionID := addHost(t, r, "bastion", "bastion.example.com")
	bastion, _ := r.Host(bastionID)

	target := model.NewHost("app")
	target.JumpHosts = []model.JumpHost{
		model.ReferenceJump(bastion),
		model.ManualJump("", "gw.example.com", 22),
		model.ManualJump("admin", "10.0.0.1", 2200),
		{Kind: model.JumpManual},
	}
	hops := r.ResolveChain(target)
	if len(hops) != 3 {
		t.Fatalf("expected invalid hop to be skipped, got %+v", hops)
	}
	if hops[0].Token != "bastion" || hops[0].HostName != "bastion.example.com" || hops[0].HostID != bastionID {
		t.Fatalf("unexpected reference hop: %+v", hops[0])
	}
	if got := r.ProxyJumpValue(target); got != "bastion,gw.example.com,admin@10.0.0.1:2200" {
		t.Fatalf("unexpected ProxyJump value: %q", got)
	}
	if got := r.ProxyJumpDirective(model.NewHost("plain")); got != "" {
		t.Fatalf("expected no directive for a host without hops, got %q", got)
	}
}

func TestResolveChain_DanglingReferenceFallsBack(t *testing.T) {
	r := New()
	bastionID := addHost(t, r, "bastion", "bastion.example.com")
	bastion, _ := r.Host(bastionID)
	appID := addHost(t, r, "app", "10.0.0.2")
	if err := r.AddJumpHost(appID, model.ReferenceJump(bastion)); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveHost(bastionID); err != nil {
		t.Fatal(err)
	}

	app, _ := r.Host(appID)
	hops := r.ResolveChain(app)
	if len(hops) != 1 || hops[0].Token != "bastion" || !hops[0].Dangling {
		t.Fatalf("expected dangling fallback hop, got %+v", hops)
	}
	if got := r.ProxyJumpDirective(app); got != "ProxyJump bastion" {
		t.Fatalf("unexpected directive: %q", got)
	}
}

func TestResolveChain_RenamedTargetUsesCurrentAlias(t *testing.T) {
	r := New()
	bastionID := addHost(t, r, "bastion", "b")
	bastion, _ := r.Host(bastionID)
	app := model.NewHost("app")
	app.JumpHosts = []model.JumpHost{model.ReferenceJump(bastion)}

	bastion.Alias = "bastion-eu"
	if err := r.UpdateHost(bastion); err != nil {
		t.Fatal(err)
	}
	if got := r.ProxyJumpValue(app); got != "bastion-eu" {
		t.Fatalf("expected live alias, got %q", got)
	}
}

func TestExpandChain_Nested(t *testing.T) {
	r := New()
	edgeID := addHost(t, r, "edge", "edge.example.com")
	edge, _ := r.Host(edgeID)
	innerID := addHost(t, r, "inner", "10.1.0.1")
	if err := r.AddJumpHost(innerID, model.ReferenceJump(edge)); err != nil {
		t.Fatal(err)
	}
	inner, _ := r.Host(innerID)

	app := model.NewHost("app")
	app.JumpHosts = []model.JumpHost{model.ReferenceJump(inner)}
	hops, err := r.ExpandChain(app)
	if err != nil {
		t.Fatal(err)
	}
	var tokens []string
	for _, h := range hops {
		tokens = append(tokens, h.Token)
	}
	if strings.Join(tokens, ",") != "edge,inner" {
		t.Fatalf("unexpected expansion: %v", tokens)
	}
	if got := r.ProxyJumpValue(app); got != "inner" {
		t.Fatalf("single-level resolution must not expand, got %q", got)
	}
}

func TestExpandChain_DetectsCycle(t *testing.T) {
	r := New()
	aID := addHost(t, r, "a", "a.example.com")
	bID := addHost(t, r, "b", "b.example.com")
	a, _ := r.Host(aID)
	b, _ := r.Host(bID)
	if err := r.AddJumpHost(aID, model.ReferenceJump(b)); err != nil {
		t.Fatal(err)
	}
	if err := r.AddJumpHost(bID, model.ReferenceJump(a)); err != nil {
		t.Fatal(err)
	}
	a, _ = r.Host(aID)
	_, err := r.ExpandChain(a)
	if !errors.Is(err, ErrJumpCycle) {
		t.Fatalf("expected ErrJumpCycle, got %v", err)
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Fatalf("expected cycle path in error, got %q", err)
	}
}

func TestAddJumpHost_Validation(t *testing.T) {
	r := New()
	id := addHost(t, r, "a", "a.example.com")
	self, _ := r.Host(id)
	if err := r.AddJumpHost(id, model.ReferenceJump(self)); !errors.Is(err, ErrJumpCycle) {
		t.Fatalf("expected self reference to be rejected, got %v", err)
	}
	if err := r.AddJumpHost(id, model.JumpHost{Kind: model.JumpManual}); !errors.Is(err, ErrInvalidJump) {
		t.Fatalf("expected ErrInvalidJump, got %v", err)
	}
	if err := r.AddJumpHost(uuid.New(), model.ManualJump("", "x", 22)); !errors.Is(err, ErrHostNotFound) {
		t.Fatalf("expected ErrHostNotFound, got %v", err)
	}
}

func TestMoveAndRemoveJumpHost(t *testing.T) {
	r := New()
	id := addHost(t, r, "app", "10.0.0.2")
	for _, h := range []string{"one", "two", "three"} {
		if err := r.AddJumpHost(id, model.ManualJump("", h, 22)); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.MoveJumpHost(id, 2, 0); err != nil {
		t.Fatal(err)
	}
	app, _ := r.Host(id)
	if got := r.ProxyJumpValue(app); got != "three,one,two" {
		t.Fatalf("unexpected order after move: %q", got)
	}
	if err := r.RemoveJumpHost(id, 1); err != nil {
		t.Fatal(err)
	}
	app, _ = r.Host(id)
	if got := r.ProxyJumpValue(app); got != "three,two" {
		t.Fatalf("unexpected order after remove: %q", got)
	}
	if err := r.MoveJumpHost(id, 0, 9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestParseProxyJump(t *testing.T) {
	r := New()
	bastionID := addHost(t, r, "bastion", "b")

	got := r.ParseProxyJump(" bastion ,jump.example.com, ops@[2001:db8::1]:2022,,root@edge")
	if len(got) != 4 {
		t.Fatalf("expected 4 hops, got %+v", got)
	}
	if got[0].Kind != model.JumpReference || got[0].ReferencedHostID != bastionID {
		t.Fatalf("expected reference hop, got %+v", got[0])
	}
	if got[1].HostName != "jump.example.com" || got[1].Port != 22 || got[1].User != "" {
		t.Fatalf("unexpected manual hop: %+v", got[1])
	}
	if got[2].HostName != "2001:db8::1" || got[2].Port != 2022 || got[2].User != "ops" {
		t.Fatalf("unexpected IPv6 hop: %+v", got[2])
	}
	if got[3].User != "root" || got[3].HostName != "edge" || got[3].Port != 22 {
		t.Fatalf("unexpected user hop: %+v", got[3])
	}
}

func TestBindDirectives_IPv6HopRoundTrips(t *testing.T) {
	r := New()
	h := model.NewHost("app")
	h.HostName = "app.internal"
	h.Options["proxyjump"] = "admin@[2001:db8::1],[2001:db8::2]:2022"
	if _, err := r.AddHost(h); err != nil {
		t.Fatal(err)
	}
	r.BindDirectives()

	out := r.Render()
	if !strings.Contains(out, "  ProxyJump admin@[2001:db8::1],[2001:db8::2]:2022\n") {
		t.Fatalf("IPv6 hops must stay bracketed:\n%s", out)
	}
}
