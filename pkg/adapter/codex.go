package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// Codex drives `codex exec --json`, a JSONL event stream. The thread id from
// thread.started is the resume token for the next turn.
type Codex struct{}

// Kind returns the provider this adapter drives.
func (Codex) Kind() protocol.AdapterKind { return protocol.AdapterCodex }

type codexEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Text     string `json:"text"`
	Error    struct {
		Message string `json:"message"`
	} `json:"error"`
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// Invoke runs one codex turn. A non-empty session token resumes the thread;
// token rejection surfaces as SessionRejectedError so the caller can retry
// fresh.
func (a Codex) Invoke(ctx context.Context, command string, req Request) (Result, error) {
	id := string(a.Kind())
	argv := []string{command, "exec", "--json"}
	if req.SessionToken != "" {
		argv = append(argv, "resume", req.SessionToken)
	}
	argv = append(argv, composePrompt(req))

	token := req.SessionToken
	var text string
	var lastRaw string
	gotText := false

	proc, err := run(ctx, id, argv, req.Timeout, func(line []byte) (bool, error) {
		lastRaw = string(line)
		var ev codexEvent
		if jsonErr := json.Unmarshal(line, &ev); jsonErr != nil {
			return false, nil // interleaved non-event noise
		}
		switch ev.Type {
		case "thread.started":
			if ev.ThreadID != "" {
				token = ev.ThreadID
			}
		case "error", "turn.failed":
			msg := ev.Message
			if msg == "" {
				msg = ev.Error.Message
			}
			if msg == "" {
				msg = "unknown codex error"
			}
			if sessionRejected(msg) {
				return true, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: msg}
			}
			return true, fmt.Errorf("codex: %s", msg)
		case "item.completed":
			if ev.Item.Type == "agent_message" || ev.Item.Type == "message" {
				text = ev.Item.Text
				gotText = true
				return true, nil
			}
		case "message":
			if ev.Text != "" {
				text = ev.Text
				gotText = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}
	if !gotText {
		if proc.exitErr != nil {
			if sessionRejected(proc.stderr) {
				return Result{}, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: proc.stderr}
			}
			return Result{}, fmt.Errorf("codex exited: %w: %s", proc.exitErr, proc.stderr)
		}
		return Result{}, &protocol.ProtocolError{ParticipantID: id, Raw: lastRaw, Err: fmt.Errorf("stream ended without a message")}
	}
	return finishResult(text, token), nil
}
