package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eavookindroid/consilium-agent-tui/pkg/adapter"
	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/scheduler"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

// fakeAdapter routes Invoke to a test-provided function.
type fakeAdapter struct {
	kind   protocol.AdapterKind
	invoke func(ctx context.Context, command string, req adapter.Request) (adapter.Result, error)
}

func (f fakeAdapter) Kind() protocol.AdapterKind { return f.kind }

func (f fakeAdapter) Invoke(ctx context.Context, command string, req adapter.Request) (adapter.Result, error) {
	return f.invoke(ctx, command, req)
}

// invokeFn is the per-test adapter behavior, shared by all three kinds.
type invokeFn func(ctx context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error)

type fixture struct {
	sched    *scheduler.Scheduler
	log      *store.ConversationLog
	sessions *store.SessionStore
	reg      *registry.Registry
	roles    *registry.RoleManager
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, invoke invokeFn) *fixture {
	t.Helper()
	dir := t.TempDir()

	log, err := store.Open(filepath.Join(dir, "history.jsonl"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	reg, err := registry.Load(filepath.Join(dir, "settings.toml"))
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	for _, id := range []string{"claude", "codex", "gemini"} {
		if err := reg.Add(protocol.Participant{
			ID:      id,
			Kind:    protocol.KindAgent,
			Adapter: protocol.AdapterKind(id),
			Command: id,
			Enabled: true,
		}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	sessions := store.NewSessionStore(dir)
	roles, err := registry.LoadRoles(filepath.Join(dir, "roles"))
	if err != nil {
		t.Fatalf("load roles: %v", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Log:      log,
		Sessions: sessions,
		Registry: reg,
		Roles:    roles,
		AdapterFor: func(kind protocol.AdapterKind) (adapter.Adapter, error) {
			return fakeAdapter{kind: kind, invoke: func(ctx context.Context, _ string, req adapter.Request) (adapter.Result, error) {
				return invoke(ctx, kind, req)
			}}, nil
		},
		InvokeTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = sched.Run(ctx) }()
	t.Cleanup(cancel)

	return &fixture{sched: sched, log: log, sessions: sessions, reg: reg, roles: roles, cancel: cancel}
}

// drainUntilIdle consumes updates until the machine returns to idle.
func (f *fixture) drainUntilIdle(t *testing.T) []scheduler.Update {
	t.Helper()
	return f.drainUntil(t, func(u scheduler.Update) bool {
		return u.Kind == scheduler.UpdateState && u.State == scheduler.StateIdle
	})
}

func (f *fixture) drainUntil(t *testing.T, stop func(scheduler.Update) bool) []scheduler.Update {
	t.Helper()
	var got []scheduler.Update
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-f.sched.Updates():
			got = append(got, u)
			if stop(u) {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for updates; got %d so far", len(got))
		}
	}
}

// agentMessages filters the durable log down to agent responses.
func agentMessages(log *store.ConversationLog) []protocol.Message {
	var out []protocol.Message
	for _, m := range log.Replay(0) {
		if m.Origin == protocol.OriginAgent {
			out = append(out, m)
		}
	}
	return out
}

func echoInvoke(_ context.Context, kind protocol.AdapterKind, _ adapter.Request) (adapter.Result, error) {
	return adapter.Result{Text: "reply from " + string(kind), SessionToken: "tok-" + string(kind)}, nil
}

func TestBroadcastRound_AllAgentsRespondInRegistryOrder(t *testing.T) {
	f := newFixture(t, echoInvoke)

	if err := f.sched.Submit("hello everyone"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	replies := agentMessages(f.log)
	want := []string{"claude", "codex", "gemini"}
	if len(replies) != len(want) {
		t.Fatalf("got %d replies, want %d", len(replies), len(want))
	}
	for i, id := range want {
		if replies[i].SenderID != id {
			t.Errorf("reply[%d] from %s, want %s", i, replies[i].SenderID, id)
		}
	}

	// The user message went durable before any response.
	all := f.log.Replay(0)
	if all[0].SenderID != protocol.UserID || all[0].Content != "hello everyone" {
		t.Errorf("first durable message = %+v, want the submission", all[0])
	}
}

func TestMentionRound_OnlyMentionedAgentsInvoked(t *testing.T) {
	f := newFixture(t, echoInvoke)

	if err := f.sched.Submit("@gemini @claude please weigh in"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	replies := agentMessages(f.log)
	want := []string{"gemini", "claude"} // mention order, codex excluded
	if len(replies) != len(want) {
		t.Fatalf("got %d replies, want %d", len(replies), len(want))
	}
	for i, id := range want {
		if replies[i].SenderID != id {
			t.Errorf("reply[%d] from %s, want %s", i, replies[i].SenderID, id)
		}
	}
}

func TestSecretRound_TargetOnlyAndPrivateReply(t *testing.T) {
	f := newFixture(t, echoInvoke)

	if err := f.sched.Submit("@@codex between us"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	all := f.log.Replay(0)
	if len(all) != 2 {
		t.Fatalf("durable log has %d messages, want 2", len(all))
	}
	if !all[0].Secret() || all[0].Visibility.TargetID != "codex" {
		t.Errorf("user message visibility = %+v, want secret to codex", all[0].Visibility)
	}
	reply := all[1]
	if reply.SenderID != "codex" {
		t.Fatalf("reply from %s, want codex", reply.SenderID)
	}
	if !reply.Secret() || reply.Visibility.TargetID != protocol.UserID {
		t.Errorf("reply visibility = %+v, want secret back to the user", reply.Visibility)
	}
}

func TestSubmit_UnresolvedMentionRejectedBeforeDispatch(t *testing.T) {
	f := newFixture(t, echoInvoke)

	err := f.sched.Submit("@nobody hello")
	var addrErr *protocol.AddressError
	if !errors.As(err, &addrErr) {
		t.Fatalf("Submit err = %v, want AddressError", err)
	}
	if got := len(f.log.Replay(0)); got != 0 {
		t.Errorf("rejected submission left %d durable messages", got)
	}
}

func TestFaultIsolation_OneFailureDoesNotStopTheRound(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		if kind == protocol.AdapterCodex {
			return adapter.Result{}, fmt.Errorf("codex: rate limited")
		}
		return echoInvoke(ctx, kind, req)
	})

	if err := f.sched.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updates := f.drainUntilIdle(t)

	replies := agentMessages(f.log)
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2 (codex failed)", len(replies))
	}

	noticed := false
	for _, u := range updates {
		if u.Kind == scheduler.UpdateNotice && u.ParticipantID == "codex" && strings.Contains(u.Notice, "failed") {
			noticed = true
		}
	}
	if !noticed {
		t.Error("no attributed failure notice for codex")
	}
}

func TestSilentResponse_NoticeInsteadOfMessage(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		if kind == protocol.AdapterGemini {
			return adapter.Result{Text: "", SessionToken: "tok-g"}, nil
		}
		return echoInvoke(ctx, kind, req)
	})

	if err := f.sched.Submit("anything to add?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updates := f.drainUntilIdle(t)

	for _, m := range agentMessages(f.log) {
		if m.SenderID == "gemini" {
			t.Error("silent agent still produced a durable message")
		}
	}
	noticed := false
	for _, u := range updates {
		if u.Kind == scheduler.UpdateNotice && strings.Contains(u.Notice, "stayed silent") {
			noticed = true
		}
	}
	if !noticed {
		t.Error("no silence notice published")
	}
	// The session token from a silent turn is still persisted.
	if sess := f.sessions.Load("gemini", protocol.AdapterGemini); sess.SessionToken != "tok-g" {
		t.Errorf("session token = %q, want tok-g", sess.SessionToken)
	}
}

func TestSessionRejected_RetriesOnceFresh(t *testing.T) {
	calls := make(map[protocol.AdapterKind][]string)
	f := newFixture(t, func(_ context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		calls[kind] = append(calls[kind], req.SessionToken)
		if req.SessionToken != "" {
			return adapter.Result{}, &protocol.SessionRejectedError{ParticipantID: string(kind), Token: req.SessionToken, Reason: "thread not found"}
		}
		return adapter.Result{Text: "recovered", SessionToken: "tok-new"}, nil
	})

	if err := f.sessions.Save(protocol.AgentSession{
		AgentID:      "claude",
		AdapterType:  protocol.AdapterClaude,
		SessionToken: "tok-stale",
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := f.sched.Submit("@claude still there?"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	got := calls[protocol.AdapterClaude]
	if len(got) != 2 || got[0] != "tok-stale" || got[1] != "" {
		t.Fatalf("call tokens = %q, want [tok-stale \"\"]", got)
	}
	replies := agentMessages(f.log)
	if len(replies) != 1 || replies[0].Content != "recovered" {
		t.Fatalf("replies = %+v, want one recovered reply", replies)
	}
	if sess := f.sessions.Load("claude", protocol.AdapterClaude); sess.SessionToken != "tok-new" {
		t.Errorf("persisted token = %q, want tok-new", sess.SessionToken)
	}
}

func TestRolePromptInjectedOnFirstCall(t *testing.T) {
	var seenRole string
	f := newFixture(t, func(_ context.Context, _ protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		seenRole = req.RolePrompt
		return adapter.Result{Text: "ok", SessionToken: "tok"}, nil
	})

	role, err := f.roles.Create("Reviewer")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := f.roles.SavePrompt(role.ID, "You review code carefully."); err != nil {
		t.Fatalf("save prompt: %v", err)
	}
	p, _ := f.reg.Get("claude")
	p.RoleID = role.ID
	if err := f.reg.Update(p); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	if err := f.sched.Submit("@claude start"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	if seenRole != "You review code carefully." {
		t.Errorf("role prompt = %q, not injected on session start", seenRole)
	}
	replies := agentMessages(f.log)
	if len(replies) != 1 || !replies[0].RolePromptInjected {
		t.Error("response not marked role_prompt_injected")
	}
}

func waitForStepMode(t *testing.T, f *fixture, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.sched.StepMode() != want {
		if time.Now().After(deadline) {
			t.Fatalf("step mode never became %t", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStepMode_BuffersUntilRevealedInOrder(t *testing.T) {
	f := newFixture(t, echoInvoke)
	if err := f.reg.SetEnabled("gemini", false); err != nil {
		t.Fatalf("disable gemini: %v", err)
	}

	f.sched.SetStepMode(true)
	waitForStepMode(t, f, true)

	if err := f.sched.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntil(t, func(u scheduler.Update) bool {
		return u.Kind == scheduler.UpdateState && u.State == scheduler.StateRevealPending
	})

	if got := len(agentMessages(f.log)); got != 0 {
		t.Fatalf("%d responses durable before any reveal", got)
	}

	f.sched.RevealNext()
	f.drainUntil(t, func(u scheduler.Update) bool { return u.Kind == scheduler.UpdateMessage })
	replies := agentMessages(f.log)
	if len(replies) != 1 || replies[0].SenderID != "claude" {
		t.Fatalf("after first reveal replies = %+v, want just claude", replies)
	}

	f.sched.RevealNext()
	f.drainUntilIdle(t)
	replies = agentMessages(f.log)
	if len(replies) != 2 || replies[1].SenderID != "codex" {
		t.Fatalf("after second reveal replies = %+v, want claude then codex", replies)
	}
}

func TestStepModeOff_FlushesRemainingBuffers(t *testing.T) {
	f := newFixture(t, echoInvoke)

	f.sched.SetStepMode(true)
	waitForStepMode(t, f, true)

	if err := f.sched.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntil(t, func(u scheduler.Update) bool {
		return u.Kind == scheduler.UpdateState && u.State == scheduler.StateRevealPending
	})

	f.sched.SetStepMode(false)
	f.drainUntilIdle(t)

	replies := agentMessages(f.log)
	if len(replies) != 3 {
		t.Fatalf("flush produced %d replies, want 3", len(replies))
	}
}

func TestInterrupt_DuringDispatchKeepsOnlyCompletedResponses(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		if kind == protocol.AdapterCodex {
			<-ctx.Done() // hang until the interrupt kills the call
			return adapter.Result{}, ctx.Err()
		}
		return echoInvoke(ctx, kind, req)
	})

	if err := f.sched.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntil(t, func(u scheduler.Update) bool {
		return u.Kind == scheduler.UpdateInvoking && u.ParticipantID == "codex"
	})
	f.sched.Interrupt()
	f.drainUntilIdle(t)

	all := f.log.Replay(0)
	// user message, claude's completed reply, then the marker. Nothing from
	// codex or gemini.
	if len(all) != 3 {
		t.Fatalf("durable log has %d messages, want 3: %+v", len(all), all)
	}
	if all[1].SenderID != "claude" {
		t.Errorf("retained reply from %s, want claude", all[1].SenderID)
	}
	last := all[2]
	if last.Origin != protocol.OriginSystem || last.Content != protocol.InterruptedMarker {
		t.Errorf("final message = %+v, want the interrupt marker", last)
	}
}

func TestInterrupt_DuringRevealDiscardsUnrevealedBuffers(t *testing.T) {
	f := newFixture(t, echoInvoke)

	f.sched.SetStepMode(true)
	waitForStepMode(t, f, true)

	if err := f.sched.Submit("hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntil(t, func(u scheduler.Update) bool {
		return u.Kind == scheduler.UpdateState && u.State == scheduler.StateRevealPending
	})

	f.sched.RevealNext()
	f.drainUntil(t, func(u scheduler.Update) bool { return u.Kind == scheduler.UpdateMessage })

	f.sched.Interrupt()
	f.drainUntilIdle(t)

	all := f.log.Replay(0)
	if len(all) != 3 {
		t.Fatalf("durable log has %d messages, want user + 1 revealed + marker", len(all))
	}
	if all[1].SenderID != "claude" {
		t.Errorf("revealed reply from %s, want claude", all[1].SenderID)
	}
	if all[2].Content != protocol.InterruptedMarker {
		t.Errorf("final message = %q, want the interrupt marker", all[2].Content)
	}
}

func TestLastSeenAdvancesAcrossRounds(t *testing.T) {
	var contexts []string
	f := newFixture(t, func(_ context.Context, kind protocol.AdapterKind, req adapter.Request) (adapter.Result, error) {
		if kind == protocol.AdapterClaude {
			contexts = append(contexts, req.Context)
		}
		return adapter.Result{Text: "noted", SessionToken: "tok"}, nil
	})

	if err := f.sched.Submit("@claude first question"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)
	if err := f.sched.Submit("@claude second question"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.drainUntilIdle(t)

	if len(contexts) != 2 {
		t.Fatalf("claude invoked %d times, want 2", len(contexts))
	}
	if !strings.Contains(contexts[0], "first question") {
		t.Error("first context missing the first question")
	}
	if strings.Contains(contexts[1], "first question") {
		t.Error("second context resent an already-seen message")
	}
	if !strings.Contains(contexts[1], "second question") {
		t.Error("second context missing the new question")
	}
}
