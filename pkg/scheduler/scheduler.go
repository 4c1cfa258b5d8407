// Package scheduler owns the conversation state machine. A single
// coordinator goroutine runs dispatch rounds sequentially, so an interrupt
// or step-mode toggle stays serviceable while an agent call is in flight.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eavookindroid/consilium-agent-tui/pkg/adapter"
	"github.com/eavookindroid/consilium-agent-tui/pkg/eventlog"
	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/router"
	"github.com/eavookindroid/consilium-agent-tui/pkg/store"
)

// DefaultInvokeTimeout bounds one agent CLI call.
const DefaultInvokeTimeout = 5 * time.Minute

// State of the round machine.
type State string

// Machine states.
const (
	StateIdle          State = "idle"
	StateDispatching   State = "dispatching"
	StateRevealPending State = "reveal_pending"
)

// UpdateKind classifies scheduler updates sent to the UI.
type UpdateKind int

// Update kinds.
const (
	// UpdateMessage carries a durably appended transcript message.
	UpdateMessage UpdateKind = iota
	// UpdateNotice carries a transient system notice, not part of the log.
	UpdateNotice
	// UpdateState announces a machine state change.
	UpdateState
	// UpdateInvoking announces that a participant's call started.
	UpdateInvoking
	// UpdateBuffered announces a step-mode response awaiting reveal.
	UpdateBuffered
)

// Update is one scheduler-to-UI notification.
type Update struct {
	Kind          UpdateKind
	Message       protocol.Message
	Notice        string
	ParticipantID string
	State         State
	Pending       int
}

// EventRecorder receives engine lifecycle events. *eventlog.Writer satisfies
// it; nil disables recording.
type EventRecorder interface {
	Log(ctx context.Context, evType, source, roundID, participantID, payload string) error
}

// Config wires a Scheduler. Log, Sessions, and Registry are required.
type Config struct {
	Log      *store.ConversationLog
	Sessions *store.SessionStore
	Registry *registry.Registry
	Roles    *registry.RoleManager
	Events   EventRecorder

	// AdapterFor overrides adapter construction (test seam).
	AdapterFor func(protocol.AdapterKind) (adapter.Adapter, error)

	// InvokeTimeout bounds each agent call; zero means DefaultInvokeTimeout.
	InvokeTimeout time.Duration
}

// Scheduler coordinates dispatch rounds over one workspace conversation.
type Scheduler struct {
	log      *store.ConversationLog
	sessions *store.SessionStore
	reg      *registry.Registry
	roles    *registry.RoleManager
	events   EventRecorder

	adapterFor func(protocol.AdapterKind) (adapter.Adapter, error)
	timeout    time.Duration

	submitCh    chan submission
	interruptCh chan struct{}
	revealCh    chan struct{}
	stepCh      chan bool
	updates     chan Update

	mu       sync.Mutex
	state    State
	stepMode bool
}

type submission struct {
	addr    router.Address
	content string
}

// New validates cfg and builds a Scheduler. Call Run to start it.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Log == nil || cfg.Sessions == nil || cfg.Registry == nil {
		return nil, errors.New("scheduler: Log, Sessions, and Registry are required")
	}
	adapterFor := cfg.AdapterFor
	if adapterFor == nil {
		adapterFor = adapter.ForKind
	}
	timeout := cfg.InvokeTimeout
	if timeout == 0 {
		timeout = DefaultInvokeTimeout
	}
	return &Scheduler{
		log:         cfg.Log,
		sessions:    cfg.Sessions,
		reg:         cfg.Registry,
		roles:       cfg.Roles,
		events:      cfg.Events,
		adapterFor:  adapterFor,
		timeout:     timeout,
		submitCh:    make(chan submission, 8),
		interruptCh: make(chan struct{}, 1),
		revealCh:    make(chan struct{}, 1),
		stepCh:      make(chan bool, 4),
		updates:     make(chan Update, 1024),
		state:       StateIdle,
	}, nil
}

// Updates is the stream of scheduler notifications. The consumer must keep
// draining it.
func (s *Scheduler) Updates() <-chan Update { return s.updates }

// State returns the current machine state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StepMode reports whether responses are being buffered for manual reveal.
func (s *Scheduler) StepMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepMode
}

// Submit parses input and queues a dispatch round. An unresolved @-name is
// rejected here, before anything is recorded or dispatched.
func (s *Scheduler) Submit(input string) error {
	addr, err := router.Parse(input, s.reg)
	if err != nil {
		return err
	}
	select {
	case s.submitCh <- submission{addr: addr, content: input}:
		return nil
	default:
		return errors.New("scheduler busy, message not queued")
	}
}

// Interrupt aborts the current round: the in-flight call's process group is
// killed and unrevealed responses are discarded. No-op when idle.
func (s *Scheduler) Interrupt() {
	select {
	case s.interruptCh <- struct{}{}:
	default:
	}
}

// RevealNext publishes the next buffered response while step mode holds the
// round in reveal-pending.
func (s *Scheduler) RevealNext() {
	select {
	case s.revealCh <- struct{}{}:
	default:
	}
}

// SetStepMode toggles response buffering. Turning it off mid-round flushes
// the remaining buffered responses in order.
func (s *Scheduler) SetStepMode(on bool) {
	select {
	case s.stepCh <- on:
	default:
	}
}

// Run is the coordinator loop. It exits when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub := <-s.submitCh:
			s.runRound(ctx, sub)
		case <-s.interruptCh:
			// Idle; nothing to interrupt.
		case <-s.revealCh:
			// Idle; nothing to reveal.
		case on := <-s.stepCh:
			s.setStep(on)
		}
	}
}

// runRound executes one dispatch round end to end.
func (s *Scheduler) runRound(ctx context.Context, sub submission) {
	roundID := uuid.NewString()
	s.setState(StateDispatching)
	defer s.setState(StateIdle)

	userMsg := protocol.Message{
		Timestamp:        time.Now(),
		SenderID:         protocol.UserID,
		Origin:           protocol.OriginUser,
		Visibility:       sub.addr.Visibility(),
		AddressedTo:      sub.addr.AddressedTo(),
		RequiresResponse: true,
		Content:          sub.content,
	}
	appended, err := s.log.Append(userMsg)
	if err != nil {
		s.notice("", fmt.Sprintf("message not recorded: %v", err))
		s.event(ctx, eventlog.TypeFault, roundID, "", err.Error())
		return
	}
	s.publish(Update{Kind: UpdateMessage, Message: appended})
	s.event(ctx, eventlog.TypeRoundStarted, roundID, "", fmt.Sprintf(`{"addressing":%q}`, sub.addr.Kind))

	responders := sub.addr.ResponseSet(s.reg.EnabledAgents())

	var buffers []protocol.Message
	interrupted := false
	aborted := false

	for _, p := range responders {
		select {
		case <-s.interruptCh:
			interrupted = true
		default:
		}
		if interrupted {
			break
		}

		msg, status := s.invokeParticipant(ctx, roundID, sub, p)
		switch status {
		case invokeInterrupted:
			interrupted = true
		case invokeFailed, invokeSilent:
			// Notices already published; the round continues.
		case invokeOK:
			if s.StepMode() {
				buffers = append(buffers, msg)
				s.publish(Update{Kind: UpdateBuffered, ParticipantID: p.ID, Pending: len(buffers)})
				continue
			}
			if !s.record(ctx, roundID, msg) {
				aborted = true
			}
		}
		if interrupted || aborted {
			break
		}
	}

	if interrupted {
		s.appendInterruptMarker(ctx, roundID)
		return
	}
	if aborted {
		return
	}

	if len(buffers) > 0 {
		s.setState(StateRevealPending)
		if !s.revealLoop(ctx, roundID, buffers) {
			return
		}
	}
	s.event(ctx, eventlog.TypeRoundCompleted, roundID, "", "")
}

type invokeStatus int

const (
	invokeOK invokeStatus = iota
	invokeSilent
	invokeFailed
	invokeInterrupted
)

// invokeParticipant runs one agent call: context build, cadence decision,
// session handling with a single fresh retry on token rejection.
func (s *Scheduler) invokeParticipant(ctx context.Context, roundID string, sub submission, p protocol.Participant) (protocol.Message, invokeStatus) {
	ad, err := s.adapterFor(p.Adapter)
	if err != nil {
		s.fault(ctx, roundID, p, err)
		return protocol.Message{}, invokeFailed
	}

	sess := s.sessions.Load(p.ID, p.Adapter)
	isInit := sess.SessionToken == ""
	injected := router.InjectRolePrompt(&sess, s.reg.Cadence(), isInit)

	rolePrompt := ""
	if injected && p.RoleID != "" && s.roles != nil {
		if role, ok := s.roles.Get(p.RoleID); ok {
			rolePrompt = role.Prompt
		}
	}

	window := s.log.Replay(0)
	contextText, lastSeen := router.BuildContext(window, p, sess.LastSeenID, s.displayName)

	req := adapter.Request{
		Context:      contextText,
		RolePrompt:   rolePrompt,
		SessionToken: sess.TokenFor(p.Adapter),
		Timeout:      s.timeout,
	}

	s.publish(Update{Kind: UpdateInvoking, ParticipantID: p.ID})
	s.event(ctx, eventlog.TypeDispatch, roundID, p.ID, "")

	res, interrupted, err := s.invoke(ctx, ad, p, req)
	if interrupted {
		return protocol.Message{}, invokeInterrupted
	}

	var rejected *protocol.SessionRejectedError
	if errors.As(err, &rejected) {
		// The provider lost the thread. Drop the token and try once fresh.
		if clearErr := s.sessions.Clear(p.ID, p.Adapter); clearErr != nil {
			s.notice(p.ID, fmt.Sprintf("%s: session reset not persisted: %v", s.displayName(p.ID), clearErr))
		}
		s.event(ctx, eventlog.TypeSessionReset, roundID, p.ID, rejected.Reason)
		s.notice(p.ID, fmt.Sprintf("%s session expired, starting fresh", s.displayName(p.ID)))

		req.SessionToken = ""
		res, interrupted, err = s.invoke(ctx, ad, p, req)
		if interrupted {
			return protocol.Message{}, invokeInterrupted
		}
	}
	if err != nil {
		s.fault(ctx, roundID, p, err)
		return protocol.Message{}, invokeFailed
	}

	sess.AdapterType = p.Adapter
	sess.SessionToken = res.SessionToken
	sess.LastSeenID = lastSeen
	if saveErr := s.sessions.Save(sess); saveErr != nil {
		s.notice(p.ID, fmt.Sprintf("%s: session not persisted: %v", s.displayName(p.ID), saveErr))
	}

	if res.Text == "" {
		s.event(ctx, eventlog.TypeSilent, roundID, p.ID, "")
		s.notice(p.ID, fmt.Sprintf("%s stayed silent", s.displayName(p.ID)))
		return protocol.Message{}, invokeSilent
	}

	msg := protocol.Message{
		Timestamp:          time.Now(),
		SenderID:           p.ID,
		Origin:             protocol.OriginAgent,
		Visibility:         protocol.Public(),
		Content:            res.Text,
		RolePromptInjected: injected,
	}
	// A reply inside a private exchange stays private, addressed back to the
	// round's sender.
	if sub.addr.Kind == router.Secret {
		msg.Visibility = protocol.SecretTo(protocol.UserID)
		msg.AddressedTo = []string{protocol.UserID}
	}
	s.event(ctx, eventlog.TypeResponse, roundID, p.ID, "")
	return msg, invokeOK
}

// invoke runs the adapter call in a goroutine so the interrupt channel stays
// serviceable. On interrupt the call context is cancelled, which kills the
// child process group, and we wait for the call to unwind.
func (s *Scheduler) invoke(ctx context.Context, ad adapter.Adapter, p protocol.Participant, req adapter.Request) (adapter.Result, bool, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res adapter.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := ad.Invoke(callCtx, p.Command, req)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if errors.Is(out.err, context.Canceled) {
			return adapter.Result{}, true, nil
		}
		return out.res, false, out.err
	case <-s.interruptCh:
		cancel()
		<-ch
		return adapter.Result{}, true, nil
	}
}

// revealLoop holds the machine in reveal-pending until every buffered
// response is published, step mode is turned off (flush), or the round is
// interrupted. Returns false when the round did not complete normally.
func (s *Scheduler) revealLoop(ctx context.Context, roundID string, buffers []protocol.Message) bool {
	for len(buffers) > 0 {
		select {
		case <-ctx.Done():
			return false
		case <-s.revealCh:
			if !s.revealOne(ctx, roundID, &buffers) {
				return false
			}
		case <-s.interruptCh:
			// Unrevealed responses are discarded; only what was already
			// published survives.
			s.appendInterruptMarker(ctx, roundID)
			return false
		case on := <-s.stepCh:
			s.setStep(on)
			if !on {
				for len(buffers) > 0 {
					if !s.revealOne(ctx, roundID, &buffers) {
						return false
					}
				}
			}
		case <-s.submitCh:
			s.notice("", "responses pending reveal; reveal or disable step mode first")
		}
	}
	return true
}

// revealOne durably appends and publishes the next buffered response.
func (s *Scheduler) revealOne(ctx context.Context, roundID string, buffers *[]protocol.Message) bool {
	msg := (*buffers)[0]
	*buffers = (*buffers)[1:]
	if !s.record(ctx, roundID, msg) {
		return false
	}
	s.event(ctx, eventlog.TypeRevealed, roundID, msg.SenderID, "")
	s.publish(Update{Kind: UpdateBuffered, Pending: len(*buffers)})
	return true
}

// record durably appends msg, then publishes it. A storage failure aborts
// the round: nothing may become visible without surviving a write.
func (s *Scheduler) record(ctx context.Context, roundID string, msg protocol.Message) bool {
	appended, err := s.log.Append(msg)
	if err != nil {
		s.notice("", fmt.Sprintf("round aborted, response not recorded: %v", err))
		s.event(ctx, eventlog.TypeFault, roundID, msg.SenderID, err.Error())
		return false
	}
	s.publish(Update{Kind: UpdateMessage, Message: appended})
	return true
}

// appendInterruptMarker closes an interrupted round with the durable marker.
func (s *Scheduler) appendInterruptMarker(ctx context.Context, roundID string) {
	marker := protocol.Message{
		Timestamp: time.Now(),
		SenderID:  protocol.SystemID,
		Origin:    protocol.OriginSystem,
		Content:   protocol.InterruptedMarker,
	}
	appended, err := s.log.Append(marker)
	if err != nil {
		s.notice("", fmt.Sprintf("interrupt marker not recorded: %v", err))
	} else {
		s.publish(Update{Kind: UpdateMessage, Message: appended})
	}
	s.event(ctx, eventlog.TypeInterrupt, roundID, "", "")
}

// fault publishes an attributed failure notice. The round continues; one
// participant's failure never takes down the others.
func (s *Scheduler) fault(ctx context.Context, roundID string, p protocol.Participant, err error) {
	s.notice(p.ID, fmt.Sprintf("%s failed: %v", s.displayName(p.ID), err))
	s.event(ctx, eventlog.TypeFault, roundID, p.ID, err.Error())
}

func (s *Scheduler) notice(participantID, text string) {
	s.publish(Update{Kind: UpdateNotice, ParticipantID: participantID, Notice: text})
}

func (s *Scheduler) publish(u Update) {
	s.updates <- u
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateState, State: st})
}

func (s *Scheduler) setStep(on bool) {
	s.mu.Lock()
	changed := s.stepMode != on
	s.stepMode = on
	s.mu.Unlock()
	if changed {
		s.event(context.Background(), eventlog.TypeStepModeChanged, "", "", fmt.Sprintf("%t", on))
	}
}

func (s *Scheduler) displayName(id string) string {
	if p, ok := s.reg.Get(id); ok {
		return p.DisplayName()
	}
	return id
}

func (s *Scheduler) event(ctx context.Context, evType, roundID, participantID, payload string) {
	if s.events == nil {
		return
	}
	_ = s.events.Log(ctx, evType, "scheduler", roundID, participantID, payload)
}
