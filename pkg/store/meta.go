package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Meta is the workspace session metadata record.
type Meta struct {
	WorkspacePath string    `json:"workspace_path"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessed  time.Time `json:"last_accessed"`
	MessageCount  int64     `json:"message_count"`
}

// LoadMeta reads the metadata record, creating a fresh one if absent.
func LoadMeta(path, workspacePath string) (Meta, error) {
	data, err := os.ReadFile(path) //nolint:gosec // workspace-internal path
	if err != nil {
		if os.IsNotExist(err) {
			meta := Meta{WorkspacePath: workspacePath, CreatedAt: time.Now()}
			return meta, SaveMeta(path, meta)
		}
		return Meta{}, fmt.Errorf("read session metadata %s: %w", path, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("parse session metadata %s: %w", path, err)
	}
	return meta, nil
}

// SaveMeta writes the metadata record, refreshing last_accessed.
func SaveMeta(path string, meta Meta) error {
	meta.LastAccessed = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session metadata %s: %w", path, err)
	}
	return nil
}
