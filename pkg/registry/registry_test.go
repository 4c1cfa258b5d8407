package registry_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.Load(filepath.Join(t.TempDir(), "settings.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return r
}

func agent(id, nickname string) protocol.Participant {
	return protocol.Participant{
		ID:       id,
		Kind:     protocol.KindAgent,
		Nickname: nickname,
		Adapter:  protocol.AdapterCodex,
		Command:  "codex",
		Enabled:  true,
	}
}

func TestLoad_MissingFileHasHuman(t *testing.T) {
	r := newRegistry(t)

	members := r.Participants()
	if len(members) != 1 {
		t.Fatalf("fresh registry has %d members, want 1", len(members))
	}
	if members[0].ID != protocol.UserID || members[0].Kind != protocol.KindHuman {
		t.Errorf("first member = %+v, want the human participant", members[0])
	}
}

func TestAddSavePersistsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	r, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, a := range []protocol.Participant{agent("claude", "Claude"), agent("codex", "Codex"), agent("gemini", "Gemini")} {
		if err := r.Add(a); err != nil {
			t.Fatalf("Add(%s): %v", a.ID, err)
		}
	}

	reloaded, err := registry.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	agents := reloaded.EnabledAgents()
	want := []string{"claude", "codex", "gemini"}
	if len(agents) != len(want) {
		t.Fatalf("enabled agents = %d, want %d", len(agents), len(want))
	}
	for i, id := range want {
		if agents[i].ID != id {
			t.Errorf("registry order[%d] = %s, want %s", i, agents[i].ID, id)
		}
	}
}

func TestAdd_RejectsUnknownAdapter(t *testing.T) {
	r := newRegistry(t)
	bad := agent("mystery", "Mystery")
	bad.Adapter = "ollama"
	if err := r.Add(bad); err == nil {
		t.Error("Add accepted unknown adapter kind")
	}
}

func TestSetEnabled_ExcludesFromEnabledAgents(t *testing.T) {
	r := newRegistry(t)
	if err := r.Add(agent("codex", "Codex")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.SetEnabled("codex", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := len(r.EnabledAgents()); got != 0 {
		t.Errorf("enabled agents = %d, want 0", got)
	}
}

func TestResolve_CaseAndPunctuationInsensitive(t *testing.T) {
	r := newRegistry(t)
	if err := r.Add(agent("ellis", "Ellis.Smith")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	for _, name := range []string{"ellis", "ELLIS", "Ellis.Smith", "ellissmith", "Ellis Smith"} {
		p, ok := r.Resolve(name)
		if !ok || p.ID != "ellis" {
			t.Errorf("Resolve(%q) = (%v, %v), want ellis", name, p.ID, ok)
		}
	}
	if _, ok := r.Resolve("nobody"); ok {
		t.Error("Resolve(nobody) succeeded")
	}
}

func TestRemove_HumanProtected(t *testing.T) {
	r := newRegistry(t)
	if err := r.Remove(protocol.UserID); err == nil {
		t.Error("Remove(user) succeeded, want error")
	}
}

func TestRoles_CreateDeleteLifecycle(t *testing.T) {
	dir := t.TempDir()
	roles, err := registry.LoadRoles(dir)
	if err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}

	role, err := roles.Create("Architect")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := roles.SavePrompt(role.ID, "design things"); err != nil {
		t.Fatalf("SavePrompt: %v", err)
	}

	reloaded, err := registry.LoadRoles(dir)
	if err != nil {
		t.Fatalf("reload roles: %v", err)
	}
	got, ok := reloaded.Get(role.ID)
	if !ok || got.Prompt != "design things" || got.Name != "Architect" {
		t.Errorf("reloaded role = %+v, want Architect/design things", got)
	}

	if err := reloaded.Delete(role.ID, nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := reloaded.Get(role.ID); ok {
		t.Error("role still present after Delete")
	}
}

func TestRoles_DeleteBlockedWhileReferenced(t *testing.T) {
	r := newRegistry(t)
	roles, err := registry.LoadRoles(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}
	role, err := roles.Create("Reviewer")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	member := agent("codex", "Codex")
	member.RoleID = role.ID
	if err := r.Add(member); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := roles.Delete(role.ID, r); !errors.Is(err, registry.ErrRoleInUse) {
		t.Errorf("Delete err = %v, want ErrRoleInUse", err)
	}

	if err := r.Remove("codex"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := roles.Delete(role.ID, r); err != nil {
		t.Errorf("Delete after unreference: %v", err)
	}
}

func TestRoles_BootstrapOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	roles, err := registry.LoadRoles(dir)
	if err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}
	if err := roles.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	n := len(roles.List())
	if n == 0 {
		t.Fatal("Bootstrap installed no roles")
	}
	if err := roles.Bootstrap(); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if len(roles.List()) != n {
		t.Errorf("second Bootstrap changed role count %d -> %d", n, len(roles.List()))
	}
}

func TestCadence_DefaultAndOverride(t *testing.T) {
	r := newRegistry(t)
	if got := r.Cadence(); got != registry.DefaultCadence {
		t.Errorf("default cadence = %d, want %d", got, registry.DefaultCadence)
	}
	if err := r.SetCadence(1); err != nil {
		t.Fatalf("SetCadence: %v", err)
	}
	if got := r.Cadence(); got != 1 {
		t.Errorf("cadence = %d, want 1", got)
	}
	if err := r.SetCadence(-1); err == nil {
		t.Error("SetCadence(-1) succeeded")
	}
}
