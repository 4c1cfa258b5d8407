// Package registry holds the configured chat identities for a workspace:
// the human, the agent participants with their adapter bindings, and the
// reusable prompt roles they reference. Configuration changes persist
// immediately.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// DefaultCadence is the role-prompt reinjection interval applied when the
// settings file does not set one.
const DefaultCadence = 13

// Settings is the on-disk shape of a workspace settings.toml.
type Settings struct {
	RolePromptCadence int                    `toml:"role_prompt_cadence"`
	Members           []protocol.Participant `toml:"members"`
}

// Registry is the in-memory participant table backed by settings.toml.
// Member order in the file is registry order: the scheduler dispatches and
// reveals in exactly this order.
type Registry struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// Load reads the settings file at path. A missing file yields a registry
// containing only the human participant.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path) //nolint:gosec // workspace-internal path
	if err != nil {
		if os.IsNotExist(err) {
			r.settings = Settings{RolePromptCadence: DefaultCadence, Members: []protocol.Participant{humanMember()}}
			return r, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &r.settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	r.ensureHuman()
	return r, nil
}

// humanMember is the fixed human participant present in every registry.
func humanMember() protocol.Participant {
	return protocol.Participant{
		ID:       protocol.UserID,
		Kind:     protocol.KindHuman,
		Nickname: "User",
		Enabled:  true,
	}
}

func (r *Registry) ensureHuman() {
	for _, m := range r.settings.Members {
		if m.ID == protocol.UserID {
			return
		}
	}
	r.settings.Members = append([]protocol.Participant{humanMember()}, r.settings.Members...)
}

// Save persists the current settings to disk.
func (r *Registry) Save() error {
	r.mu.RLock()
	data, err := toml.Marshal(r.settings)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings %s: %w", r.path, err)
	}
	return nil
}

// Reload re-reads the settings file in place.
func (r *Registry) Reload() error {
	fresh, err := Load(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.settings = fresh.settings
	r.mu.Unlock()
	return nil
}

// Cadence returns the workspace role-prompt cadence.
func (r *Registry) Cadence() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.settings.RolePromptCadence < 0 {
		return DefaultCadence
	}
	return r.settings.RolePromptCadence
}

// SetCadence updates and persists the role-prompt cadence.
func (r *Registry) SetCadence(n int) error {
	if n < 0 {
		return fmt.Errorf("cadence must be >= 0, got %d", n)
	}
	r.mu.Lock()
	r.settings.RolePromptCadence = n
	r.mu.Unlock()
	return r.Save()
}

// Participants returns all members in registry order.
func (r *Registry) Participants() []protocol.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Participant, len(r.settings.Members))
	copy(out, r.settings.Members)
	return out
}

// EnabledAgents returns the enabled agent participants in registry order.
// This ordering decides dispatch and reveal order for every round.
func (r *Registry) EnabledAgents() []protocol.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []protocol.Participant
	for _, m := range r.settings.Members {
		if m.Agent() && m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Get returns a participant by id.
func (r *Registry) Get(id string) (protocol.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.settings.Members {
		if m.ID == id {
			return m, true
		}
	}
	return protocol.Participant{}, false
}

// Add appends a new member and persists. The id must be unique.
func (r *Registry) Add(p protocol.Participant) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("participant id required")
	}
	if p.Agent() && !protocol.KnownAdapterKind(p.Adapter) {
		return fmt.Errorf("unknown adapter %q for %s", p.Adapter, p.ID)
	}
	r.mu.Lock()
	for _, m := range r.settings.Members {
		if m.ID == p.ID {
			r.mu.Unlock()
			return fmt.Errorf("participant %s already exists", p.ID)
		}
	}
	r.settings.Members = append(r.settings.Members, p)
	r.mu.Unlock()
	return r.Save()
}

// Remove deletes an agent member and persists. The human cannot be removed.
func (r *Registry) Remove(id string) error {
	if id == protocol.UserID {
		return fmt.Errorf("cannot remove the human participant")
	}
	r.mu.Lock()
	kept := r.settings.Members[:0]
	found := false
	for _, m := range r.settings.Members {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	r.settings.Members = kept
	r.mu.Unlock()
	if !found {
		return fmt.Errorf("participant %s not found", id)
	}
	return r.Save()
}

// Update replaces an existing member in place and persists.
func (r *Registry) Update(p protocol.Participant) error {
	r.mu.Lock()
	found := false
	for i, m := range r.settings.Members {
		if m.ID == p.ID {
			r.settings.Members[i] = p
			found = true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return fmt.Errorf("participant %s not found", p.ID)
	}
	return r.Save()
}

// SetEnabled toggles a member's enablement and persists.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	p, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("participant %s not found", id)
	}
	p.Enabled = enabled
	return r.Update(p)
}

// RoleInUse reports whether any member references the given role.
func (r *Registry) RoleInUse(roleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.settings.Members {
		if m.RoleID == roleID {
			return true
		}
	}
	return false
}

// Resolve maps a case-insensitive name (nickname or id, punctuation
// stripped) to a participant. Used by the router for @-address resolution.
func (r *Registry) Resolve(name string) (protocol.Participant, bool) {
	key := normalizeAlias(name)
	if key == "" {
		return protocol.Participant{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.settings.Members {
		if normalizeAlias(m.ID) == key || normalizeAlias(m.Nickname) == key {
			return m, true
		}
	}
	return protocol.Participant{}, false
}

// normalizeAlias lowercases and strips non-alphanumerics so "Ellis.Smith",
// "ellis smith", and "@ellissmith" all resolve to the same participant.
func normalizeAlias(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
