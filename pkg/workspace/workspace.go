// Package workspace resolves the per-project state directory and guards it
// with an advisory single-owner lock so two orchestrator processes cannot
// corrupt the same conversation log.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the state root directory (default ~/.consilium).
const HomeEnv = "CONSILIUM_HOME"

// Workspace is the resolved on-disk layout for one project path.
type Workspace struct {
	ProjectPath  string // absolute project directory this workspace is keyed by
	Digest       string // 16-hex prefix of sha256(ProjectPath)
	Dir          string // <home>/workspaces/<digest>
	HistoryPath  string // conversation log (JSONL)
	SettingsPath string // participant configuration (TOML)
	RolesDir     string // role files (YAML)
	AgentsDir    string // per-agent session records (JSON)
	EventLogPath string // runtime event log (SQLite)
	MetaPath     string // session metadata (JSON)
	LockPath     string // advisory lock file
}

// Home returns the state root, honoring the CONSILIUM_HOME override.
func Home() (string, error) {
	if v := os.Getenv(HomeEnv); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".consilium"), nil
}

// Resolve computes the workspace layout for a project path and creates its
// directories. The digest keys the workspace: same project path, same
// workspace, across restarts.
func Resolve(projectPath string) (*Workspace, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}
	return ResolveIn(projectPath, home)
}

// ResolveIn is Resolve with an explicit state root (used by tests).
func ResolveIn(projectPath, home string) (*Workspace, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("resolve project path %s: %w", projectPath, err)
	}

	sum := sha256.Sum256([]byte(abs))
	digest := hex.EncodeToString(sum[:])[:16]

	dir := filepath.Join(home, "workspaces", digest)
	ws := &Workspace{
		ProjectPath:  abs,
		Digest:       digest,
		Dir:          dir,
		HistoryPath:  filepath.Join(dir, "history.jsonl"),
		SettingsPath: filepath.Join(dir, "settings.toml"),
		RolesDir:     filepath.Join(dir, "roles"),
		AgentsDir:    filepath.Join(dir, "agents"),
		EventLogPath: filepath.Join(dir, "events.db"),
		MetaPath:     filepath.Join(dir, "session.json"),
		LockPath:     filepath.Join(dir, "consilium.lock"),
	}

	for _, d := range []string{ws.Dir, ws.RolesDir, ws.AgentsDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return nil, fmt.Errorf("create workspace dir %s: %w", d, err)
		}
	}
	return ws, nil
}
