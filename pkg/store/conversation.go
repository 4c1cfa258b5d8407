// Package store implements the durable per-workspace state: the append-only
// JSONL conversation log and the per-agent session records. Appends are
// fsynced before an entry is handed back, so a crash can never make visible
// something that was not recorded.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// DefaultReplayWindow bounds how many trailing records are rehydrated on
// startup. Older history stays on disk untouched.
const DefaultReplayWindow = 2000

// tailChunkSize is the read granularity for the backwards tail scan.
const tailChunkSize = 8192

// ConversationLog is the append-only message log for one workspace.
// All writes go through the single scheduler coordinator; the mutex only
// guards against concurrent readers (history commands, TUI refresh).
type ConversationLog struct {
	path string

	mu     sync.Mutex
	file   *os.File
	nextID int64
	tail   []protocol.Message // bounded trailing window
	window int
}

// Open opens (or creates) the log at path and rehydrates the bounded
// trailing window to recover the last assigned message id.
func Open(path string) (*ConversationLog, error) {
	return OpenWindow(path, DefaultReplayWindow)
}

// OpenWindow is Open with an explicit replay window size.
func OpenWindow(path string, window int) (*ConversationLog, error) {
	if window <= 0 {
		window = DefaultReplayWindow
	}

	lines, err := readTailLines(path, window)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}

	var tail []protocol.Message
	var lastID int64
	for _, line := range lines {
		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// Corrupt line: skip, never rewrite.
			continue
		}
		tail = append(tail, msg)
		if msg.ID > lastID {
			lastID = msg.ID
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // workspace-internal path
	if err != nil {
		return nil, fmt.Errorf("open conversation log %s: %w", path, err)
	}

	return &ConversationLog{
		path:   path,
		file:   f,
		nextID: lastID + 1,
		tail:   tail,
		window: window,
	}, nil
}

// Append assigns the next message id, durably writes one JSON line, and
// returns the stored message. Callers must only publish what Append returns:
// durability precedes visibility. Failure is a StorageError and aborts the
// round.
func (l *ConversationLog) Append(msg protocol.Message) (protocol.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg.ID = l.nextID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return protocol.Message{}, &protocol.StorageError{Path: l.path, Err: err}
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return protocol.Message{}, &protocol.StorageError{Path: l.path, Err: err}
	}
	if err := l.file.Sync(); err != nil {
		return protocol.Message{}, &protocol.StorageError{Path: l.path, Err: err}
	}

	l.nextID++
	l.tail = append(l.tail, msg)
	if len(l.tail) > l.window {
		l.tail = l.tail[len(l.tail)-l.window:]
	}
	return msg, nil
}

// Replay returns up to limit trailing messages in id order. limit <= 0
// returns the whole rehydrated window.
func (l *ConversationLog) Replay(limit int) []protocol.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail := l.tail
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	out := make([]protocol.Message, len(tail))
	copy(out, tail)
	return out
}

// LastID returns the highest message id appended so far (0 if empty).
func (l *ConversationLog) LastID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID - 1
}

// Close closes the underlying file.
func (l *ConversationLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// readTailLines reads up to limit trailing non-empty lines from path,
// scanning backwards in chunks so large histories are never fully loaded.
// A missing file yields no lines.
func readTailLines(path string, limit int) ([][]byte, error) {
	f, err := os.Open(path) //nolint:gosec // workspace-internal path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	var lines [][]byte
	var buf []byte
	chunk := make([]byte, tailChunkSize)

	for pos > 0 && len(lines) < limit {
		n := int64(tailChunkSize)
		if n > pos {
			n = pos
		}
		pos -= n
		if _, err := f.ReadAt(chunk[:n], pos); err != nil {
			return nil, err
		}
		buf = append(append([]byte{}, chunk[:n]...), buf...)

		for len(lines) < limit {
			idx := bytes.LastIndexByte(buf, '\n')
			if idx < 0 {
				break
			}
			line := buf[idx+1:]
			buf = buf[:idx]
			if len(bytes.TrimSpace(line)) > 0 {
				lines = append(lines, append([]byte{}, line...))
			}
		}
	}
	if len(lines) < limit && len(bytes.TrimSpace(buf)) > 0 {
		lines = append(lines, append([]byte{}, buf...))
	}

	// Collected newest-first; restore log order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
