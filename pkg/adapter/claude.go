package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// Claude drives `claude -p --output-format json`, which replies with a
// single JSON document instead of an event stream.
type Claude struct{}

// Kind returns the provider this adapter drives.
func (Claude) Kind() protocol.AdapterKind { return protocol.AdapterClaude }

type claudeReply struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
	Subtype   string `json:"subtype"`
}

// Invoke runs one claude turn. Stdout is buffered whole and decoded once the
// process exits.
func (a Claude) Invoke(ctx context.Context, command string, req Request) (Result, error) {
	id := string(a.Kind())
	argv := []string{command, "-p", composePrompt(req), "--output-format", "json"}
	if req.SessionToken != "" {
		argv = append(argv, "--resume", req.SessionToken)
	}

	var out strings.Builder
	proc, err := run(ctx, id, argv, req.Timeout, func(line []byte) (bool, error) {
		out.Write(line)
		out.WriteByte('\n')
		return false, nil
	})
	if err != nil {
		return Result{}, err
	}

	raw := strings.TrimSpace(out.String())
	if proc.exitErr != nil && raw == "" {
		if sessionRejected(proc.stderr) {
			return Result{}, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: proc.stderr}
		}
		return Result{}, fmt.Errorf("claude exited: %w: %s", proc.exitErr, proc.stderr)
	}

	var reply claudeReply
	if jsonErr := json.Unmarshal([]byte(raw), &reply); jsonErr != nil {
		return Result{}, &protocol.ProtocolError{ParticipantID: id, Raw: raw, Err: jsonErr}
	}
	if reply.IsError {
		msg := reply.Result
		if msg == "" {
			msg = reply.Subtype
		}
		if sessionRejected(msg) {
			return Result{}, &protocol.SessionRejectedError{ParticipantID: id, Token: req.SessionToken, Reason: msg}
		}
		return Result{}, fmt.Errorf("claude: %s", msg)
	}

	token := reply.SessionID
	if token == "" {
		token = req.SessionToken
	}
	return finishResult(reply.Result, token), nil
}
