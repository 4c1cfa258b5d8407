package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// ErrRoleInUse is returned when deleting a role still referenced by a member.
var ErrRoleInUse = errors.New("role is referenced by a participant")

// RoleUsage reports whether a role is still referenced. *Registry satisfies it.
type RoleUsage interface {
	RoleInUse(roleID string) bool
}

// RoleManager persists reusable prompt roles as one YAML file per role.
type RoleManager struct {
	dir   string
	roles map[string]protocol.Role
}

// LoadRoles reads every role file under dir.
func LoadRoles(dir string) (*RoleManager, error) {
	m := &RoleManager{dir: dir, roles: make(map[string]protocol.Role)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read roles dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name())) //nolint:gosec // listing workspace dir
		if err != nil {
			continue
		}
		var role protocol.Role
		if err := yaml.Unmarshal(data, &role); err != nil {
			continue
		}
		if role.ID == "" {
			role.ID = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		m.roles[role.ID] = role
	}
	return m, nil
}

func (m *RoleManager) pathFor(roleID string) string {
	return filepath.Join(m.dir, roleID+".yaml")
}

// List returns roles sorted by name.
func (m *RoleManager) List() []protocol.Role {
	out := make([]protocol.Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Get returns a role by id.
func (m *RoleManager) Get(roleID string) (protocol.Role, bool) {
	role, ok := m.roles[roleID]
	return role, ok
}

// Create makes a new role with an empty prompt and persists it.
func (m *RoleManager) Create(name string) (protocol.Role, error) {
	if strings.TrimSpace(name) == "" {
		return protocol.Role{}, fmt.Errorf("role name cannot be empty")
	}
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, name) {
			return protocol.Role{}, fmt.Errorf("role %q already exists", name)
		}
	}
	role := protocol.Role{ID: uuid.NewString(), Name: name}
	if err := m.write(role); err != nil {
		return protocol.Role{}, err
	}
	m.roles[role.ID] = role
	return role, nil
}

// SavePrompt updates a role's prompt text and persists it.
func (m *RoleManager) SavePrompt(roleID, prompt string) error {
	role, ok := m.roles[roleID]
	if !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	role.Prompt = prompt
	if err := m.write(role); err != nil {
		return err
	}
	m.roles[roleID] = role
	return nil
}

// Rename updates a role's display name and persists it.
func (m *RoleManager) Rename(roleID, name string) error {
	role, ok := m.roles[roleID]
	if !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	role.Name = name
	if err := m.write(role); err != nil {
		return err
	}
	m.roles[roleID] = role
	return nil
}

// Delete removes a role. Deletion is blocked while any participant
// references the role.
func (m *RoleManager) Delete(roleID string, usage RoleUsage) error {
	if _, ok := m.roles[roleID]; !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	if usage != nil && usage.RoleInUse(roleID) {
		return fmt.Errorf("delete role %s: %w", roleID, ErrRoleInUse)
	}
	if err := os.Remove(m.pathFor(roleID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove role file: %w", err)
	}
	delete(m.roles, roleID)
	return nil
}

func (m *RoleManager) write(role protocol.Role) error {
	data, err := yaml.Marshal(role)
	if err != nil {
		return fmt.Errorf("marshal role %s: %w", role.ID, err)
	}
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create roles dir: %w", err)
	}
	if err := os.WriteFile(m.pathFor(role.ID), data, 0o600); err != nil {
		return fmt.Errorf("write role file: %w", err)
	}
	return nil
}

// DefaultRoles are installed by `consilium init` into a fresh workspace.
var DefaultRoles = []protocol.Role{
	{
		Name: "Architect",
		Prompt: "You focus on system design. Weigh trade-offs explicitly, " +
			"call out coupling and failure modes, and prefer the smallest design that works.",
	},
	{
		Name: "Reviewer",
		Prompt: "You review teammates' proposals critically. Point out concrete " +
			"problems with references to what was said; do not restate agreement.",
	},
	{
		Name: "Implementer",
		Prompt: "You turn decisions into concrete steps. Answer with actionable " +
			"specifics and flag anything underspecified before starting.",
	},
}

// Bootstrap installs the default roles if the directory has none.
func (m *RoleManager) Bootstrap() error {
	if len(m.roles) > 0 {
		return nil
	}
	for _, def := range DefaultRoles {
		role, err := m.Create(def.Name)
		if err != nil {
			return err
		}
		if err := m.SavePrompt(role.ID, def.Prompt); err != nil {
			return err
		}
	}
	return nil
}
