// Package eventlog records engine lifecycle events (round starts, dispatches,
// faults, interrupts) in a SQLite database next to the conversation. The
// transcript itself lives in the JSONL history; this log is for diagnostics
// and the `logs` command.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event types emitted by the engine.
const (
	TypeRoundStarted    = "round_started"
	TypeDispatch        = "dispatch"
	TypeResponse        = "response"
	TypeSilent          = "silent"
	TypeFault           = "fault"
	TypeSessionReset    = "session_reset"
	TypeRevealed        = "revealed"
	TypeInterrupt       = "interrupt"
	TypeRoundCompleted  = "round_completed"
	TypeStepModeChanged = "step_mode_changed"
)

// schemaDDL creates the events table.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    round_id TEXT,
    participant_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_round ON events(round_id);
`

// Event is one recorded engine event.
type Event struct {
	ID            int64
	Type          string
	Source        string
	RoundID       string
	ParticipantID string
	Payload       string
	CreatedAt     time.Time
}

// Writer appends events to the log. Safe for concurrent use; SQLite
// serializes writers and WAL keeps readers unblocked.
type Writer struct {
	db *sql.DB
}

// OpenWriter opens (creating if needed) the event database at dbPath.
func OpenWriter(dbPath string) (*Writer, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure event db: %w", err)
		}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event schema: %w", err)
	}
	return &Writer{db: db}, nil
}

// Log records one event.
func (w *Writer) Log(ctx context.Context, evType, source, roundID, participantID, payload string) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (type, source, round_id, participant_id, payload) VALUES (?, ?, ?, ?, ?)`,
		evType, source, roundID, participantID, payload)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (w *Writer) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}
