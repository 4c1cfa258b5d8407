package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

func logPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "history.jsonl")
}

func TestAppend_AssignsMonotonicIDs(t *testing.T) {
	log, err := store.Open(logPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = log.Close() }()

	var last int64
	for i := range 5 {
		msg, err := log.Append(protocol.Message{
			SenderID:   protocol.UserID,
			Origin:     protocol.OriginUser,
			Visibility: protocol.Public(),
			Content:    "message",
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if msg.ID <= last {
			t.Errorf("id %d not greater than previous %d", msg.ID, last)
		}
		last = msg.ID
	}
	if log.LastID() != last {
		t.Errorf("LastID() = %d, want %d", log.LastID(), last)
	}
}

func TestReplay_ReproducesLiveTranscript(t *testing.T) {
	path := logPath(t)

	log, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	inputs := []protocol.Message{
		{SenderID: protocol.UserID, Origin: protocol.OriginUser, Visibility: protocol.Public(), Content: "hello everyone"},
		{SenderID: "claude", Origin: protocol.OriginAgent, Visibility: protocol.Public(), Content: "hi"},
		{SenderID: protocol.UserID, Origin: protocol.OriginUser, Visibility: protocol.SecretTo("codex"), AddressedTo: []string{"codex"}, Content: "just between us"},
		{SenderID: "codex", Origin: protocol.OriginAgent, Visibility: protocol.SecretTo(protocol.UserID), Content: "understood"},
	}
	var live []protocol.Message
	for _, in := range inputs {
		msg, err := log.Append(in)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		live = append(live, msg)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen from disk: the replayed window must match the live transcript.
	reopened, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	replayed := reopened.Replay(0)
	if len(replayed) != len(live) {
		t.Fatalf("replayed %d messages, want %d", len(replayed), len(live))
	}
	for i := range live {
		if replayed[i].ID != live[i].ID || replayed[i].Content != live[i].Content ||
			replayed[i].SenderID != live[i].SenderID || replayed[i].Visibility != live[i].Visibility {
			t.Errorf("replay[%d] = %+v, want %+v", i, replayed[i], live[i])
		}
	}

	// IDs continue where the previous process stopped: no duplicates on
	// restart, growth only from explicit appends.
	msg, err := reopened.Append(protocol.Message{
		SenderID: protocol.UserID, Origin: protocol.OriginUser,
		Visibility: protocol.Public(), Content: "after restart",
	})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if msg.ID != live[len(live)-1].ID+1 {
		t.Errorf("post-restart id = %d, want %d", msg.ID, live[len(live)-1].ID+1)
	}
}

func TestOpen_SkipsCorruptLines(t *testing.T) {
	path := logPath(t)

	log, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := log.Append(protocol.Message{SenderID: protocol.UserID, Origin: protocol.OriginUser, Visibility: protocol.Public(), Content: "ok"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a torn write.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.WriteString(`{"id": 2, "sender`); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	_ = f.Close()

	reopened, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if got := len(reopened.Replay(0)); got != 1 {
		t.Errorf("replay window has %d messages, want 1 (corrupt line skipped)", got)
	}
}

func TestOpenWindow_BoundsReplay(t *testing.T) {
	path := logPath(t)

	log, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for range 20 {
		if _, err := log.Append(protocol.Message{SenderID: protocol.UserID, Origin: protocol.OriginUser, Visibility: protocol.Public(), Content: "x"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.OpenWindow(path, 5)
	if err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	replayed := reopened.Replay(0)
	if len(replayed) != 5 {
		t.Fatalf("window holds %d messages, want 5", len(replayed))
	}
	// The window is the trailing slice and still recovers the true last id.
	if replayed[len(replayed)-1].ID != 20 {
		t.Errorf("last replayed id = %d, want 20", replayed[len(replayed)-1].ID)
	}
	if reopened.LastID() != 20 {
		t.Errorf("LastID = %d, want 20", reopened.LastID())
	}
}

func TestSessionStore_RoundTrip(t *testing.T) {
	s := store.NewSessionStore(t.TempDir())

	sess := s.Load("codex", protocol.AdapterCodex)
	if sess.SessionToken != "" {
		t.Errorf("fresh session has token %q", sess.SessionToken)
	}

	sess.SessionToken = "thread-123"
	sess.MessagesSinceRole = 3
	if err := s.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := s.Load("codex", protocol.AdapterCodex)
	if loaded.SessionToken != "thread-123" || loaded.MessagesSinceRole != 3 {
		t.Errorf("Load = %+v, want token thread-123 count 3", loaded)
	}
}

func TestSessionStore_AdapterMismatchResetsToken(t *testing.T) {
	s := store.NewSessionStore(t.TempDir())

	if err := s.Save(protocol.AgentSession{
		AgentID:      "scout",
		AdapterType:  protocol.AdapterCodex,
		SessionToken: "thread-123",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The agent was reconfigured to a different adapter family; the codex
	// token must not be offered to gemini.
	loaded := s.Load("scout", protocol.AdapterGemini)
	if loaded.SessionToken != "" {
		t.Errorf("token %q leaked across adapter families", loaded.SessionToken)
	}
	if loaded.AdapterType != protocol.AdapterGemini {
		t.Errorf("AdapterType = %s, want gemini", loaded.AdapterType)
	}
}

func TestSessionStore_Clear(t *testing.T) {
	s := store.NewSessionStore(t.TempDir())

	if err := s.Save(protocol.AgentSession{
		AgentID:           "codex",
		AdapterType:       protocol.AdapterCodex,
		SessionToken:      "bad-token",
		MessagesSinceRole: 7,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear("codex", protocol.AdapterCodex); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	loaded := s.Load("codex", protocol.AdapterCodex)
	if loaded.SessionToken != "" || loaded.MessagesSinceRole != 0 {
		t.Errorf("after Clear: %+v, want empty token and zero counter", loaded)
	}
}
