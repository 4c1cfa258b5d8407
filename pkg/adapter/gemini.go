package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// Gemini drives `gemini --output-format=stream-json`. The system event
// announces the session id; assistant message events carry the reply and the
// result event terminates the turn.
type Gemini struct{}

// Kind returns the provider this adapter drives.
func (Gemini) Kind() protocol.AdapterKind { return protocol.AdapterGemini }

type geminiEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Delta     bool   `json:"delta"`
	Content   string `json:"content"`
	Message   string `json:"message"`
	Error     string `json:"error"`
}

// Invoke runs one gemini turn, resuming the stored session when a token is
// present.
func (a Gemini) Invoke(ctx context.Context, command string, req Request) (Result, error) {
	id := string(a.Kind())
	argv := []string{command, "-p", composePrompt(req), "--output-format=stream-json"}
	if req.SessionToken != "" {
		argv = append(argv, "--resume", req.SessionToken)
	}

	token := req.SessionToken
	var text string
	var lastRaw string
	finished := false

	proc, err := run(ctx, id, argv, req.Timeout, func(line []byte) (bool, error) {
		lastRaw = string(line)
		var ev geminiEvent
		if jsonErr := json.Unmarshal(line, &ev); jsonErr != nil {
			return false, nil
		}
		switch ev.Type {
		case "system":
			if ev.SessionID != "" {
				token = ev.SessionID
			}
		case "message":
			// Full assistant messages only; deltas repeat the same content.
			if ev.Role == "assistant" && !ev.Delta && ev.Content != "" {
				text = ev.Content
			}
		case "result":
			finished = true
			return true, nil
		case "error":
			msg := ev.Error
			if msg == "" {
				msg = ev.Message
			}
			if msg == "" {
				msg = "unknown gemini error"
			}
			if sessionRejected(msg) {
				return true, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: msg}
			}
			return true, fmt.Errorf("gemini: %s", msg)
		}
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}
	if !finished {
		if proc.exitErr != nil {
			if sessionRejected(proc.stderr) {
				return Result{}, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: proc.stderr}
			}
			return Result{}, fmt.Errorf("gemini exited: %w: %s", proc.exitErr, proc.stderr)
		}
		return Result{}, &protocol.ProtocolError{ParticipantID: id, Raw: lastRaw, Err: fmt.Errorf("stream ended without a result event")}
	}
	return finishResult(text, token), nil
}
