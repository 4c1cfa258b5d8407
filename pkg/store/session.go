package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// SessionStore persists one continuation record per agent under the
// workspace agents directory. Records are written immediately after every
// successful adapter call.
type SessionStore struct {
	dir string
}

// NewSessionStore creates a store rooted at the workspace agents directory.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

func (s *SessionStore) pathFor(agentID string) string {
	return filepath.Join(s.dir, strings.ToLower(agentID)+".json")
}

// Load returns the stored session for an agent, or a fresh record if none
// exists or the file is unreadable.
func (s *SessionStore) Load(agentID string, kind protocol.AdapterKind) protocol.AgentSession {
	fresh := protocol.AgentSession{
		AgentID:     agentID,
		AdapterType: kind,
		CreatedAt:   time.Now(),
	}

	data, err := os.ReadFile(s.pathFor(agentID)) //nolint:gosec // workspace-internal path
	if err != nil {
		return fresh
	}
	var sess protocol.AgentSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return fresh
	}
	if sess.AgentID == "" {
		sess.AgentID = agentID
	}
	// A token issued by one adapter family is never offered to another:
	// switching an agent's adapter resets its continuation state.
	if sess.AdapterType != kind {
		fresh.CreatedAt = sess.CreatedAt
		return fresh
	}
	return sess
}

// Save writes the session record, preserving the original creation time.
func (s *SessionStore) Save(sess protocol.AgentSession) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.LastMessageAt = time.Now()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session for %s: %w", sess.AgentID, err)
	}
	path := s.pathFor(sess.AgentID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session file %s: %w", path, err)
	}
	return nil
}

// Clear drops the continuation token for an agent but keeps the record.
// Used when the provider rejects the stored token.
func (s *SessionStore) Clear(agentID string, kind protocol.AdapterKind) error {
	sess := s.Load(agentID, kind)
	sess.SessionToken = ""
	sess.MessagesSinceRole = 0
	return s.Save(sess)
}

// List returns all stored sessions in the workspace.
func (s *SessionStore) List() ([]protocol.AgentSession, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir %s: %w", s.dir, err)
	}

	var sessions []protocol.AgentSession
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name())) //nolint:gosec // listing workspace dir
		if err != nil {
			continue
		}
		var sess protocol.AgentSession
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}
