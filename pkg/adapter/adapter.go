// Package adapter bridges the conversation engine to the agent CLIs. Each
// adapter knows one provider's invocation shape and wire format; the shared
// runner owns process lifecycle so no adapter can leak a child.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// Request carries one agent invocation.
type Request struct {
	Context      string
	RolePrompt   string        // empty = not injected this call
	SessionToken string        // empty = fresh session
	Timeout      time.Duration // zero = no deadline
}

// Result is a completed invocation. Text is empty when the agent stayed
// silent (empty reply or dots-only, the opt-out convention).
type Result struct {
	Text         string
	SessionToken string
}

// Adapter invokes one provider CLI. command is the executable path or name
// configured for the participant.
type Adapter interface {
	Kind() protocol.AdapterKind
	Invoke(ctx context.Context, command string, req Request) (Result, error)
}

// ForKind returns the adapter for a configured provider.
func ForKind(kind protocol.AdapterKind) (Adapter, error) {
	switch kind {
	case protocol.AdapterClaude:
		return Claude{}, nil
	case protocol.AdapterCodex:
		return Codex{}, nil
	case protocol.AdapterGemini:
		return Gemini{}, nil
	}
	return nil, fmt.Errorf("unknown adapter kind %q", kind)
}

// composePrompt prepends the role prompt, when present, to the conversation
// context.
func composePrompt(req Request) string {
	if req.RolePrompt == "" {
		return req.Context
	}
	return req.RolePrompt + "\n\n" + req.Context
}

// finishResult applies the silent-response convention: a reply that is empty
// or dots-only means the agent chose not to speak this turn.
func finishResult(text, token string) Result {
	if protocol.SilentResponse(text) {
		return Result{SessionToken: token}
	}
	return Result{Text: text, SessionToken: token}
}
