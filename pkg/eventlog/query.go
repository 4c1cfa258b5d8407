package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
)

// QueryOpts specifies filter criteria for reading events.
type QueryOpts struct {
	// RoundID filters events to one dispatch round.
	RoundID string

	// ParticipantID filters events to one participant.
	ParticipantID string

	// EventType filters to one event type (e.g. "fault", "interrupt").
	EventType string

	// After filters events created at or after this time.
	After *time.Time

	// Before filters events created at or before this time.
	Before *time.Time

	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// Reader provides read-only access to the event log so the `logs` command
// never blocks a live chat session.
type Reader struct {
	db *sql.DB
}

// NewReader opens the event database in read-only mode.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("event database not found: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping event database: %w", err)
	}
	return &Reader{db: db}, nil
}

// Close releases the database connection. Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Query retrieves events matching opts, newest first. Returns an empty slice
// when nothing matches.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var roundID, participantID, payload sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &roundID, &participantID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.RoundID = roundID.String
		e.ParticipantID = participantID.String
		e.Payload = payload.String
		if createdAt != "" {
			parsed, err := time.Parse("2006-01-02 15:04:05", createdAt)
			if err != nil {
				parsed, err = time.Parse(time.RFC3339, createdAt)
				if err != nil {
					return nil, fmt.Errorf("parse created_at: %w", err)
				}
			}
			e.CreatedAt = parsed
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// buildQuery constructs the SQL query and arguments from opts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, type, source, round_id, participant_id, payload, created_at FROM events WHERE 1=1"

	if opts.RoundID != "" {
		conditions = append(conditions, "round_id = ?")
		args = append(args, opts.RoundID)
	}
	if opts.ParticipantID != "" {
		conditions = append(conditions, "participant_id = ?")
		args = append(args, opts.ParticipantID)
	}
	if opts.EventType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.EventType)
	}
	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.Format("2006-01-02 15:04:05"))
	}
	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.Format("2006-01-02 15:04:05"))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	return query, args
}
