package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
	"github.com/eavookindroid/consilium-agent-tui/pkg/registry"
	"github.com/eavookindroid/consilium-agent-tui/pkg/scheduler"
)

// schedMsg wraps a scheduler update for the Bubble Tea loop.
type schedMsg scheduler.Update

// rosterReloadedMsg is sent when settings.toml changed on disk.
type rosterReloadedMsg struct{}

// entryKind distinguishes transcript messages from transient notices.
type entryKind int

const (
	entryMessage entryKind = iota
	entryNotice
)

// entry is one rendered line group in the transcript.
type entry struct {
	kind   entryKind
	msg    protocol.Message
	notice string
}

// controller is the scheduler surface the model drives (test seam).
type controller interface {
	Submit(input string) error
	Interrupt()
	RevealNext()
	SetStepMode(on bool)
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	sched controller
	reg   *registry.Registry

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	entries  []entry
	state    scheduler.State
	stepMode bool
	pending  int
	invoking string
	ready    bool
	width    int
}

// newModel builds the chat model, seeding the transcript from the durable
// log replay.
func newModel(sched controller, reg *registry.Registry, replay []protocol.Message) Model {
	ti := textinput.New()
	ti.Placeholder = "message the room, @name to address, @@name for a private word"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	entries := make([]entry, 0, len(replay))
	for _, m := range replay {
		entries = append(entries, entry{kind: entryMessage, msg: m})
	}

	return Model{
		sched:   sched,
		reg:     reg,
		input:   ti,
		spinner: sp,
		entries: entries,
		state:   scheduler.StateIdle,
	}
}

// Init starts the input blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key presses, scheduler updates, and resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint:gocognit // event dispatch
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		chromeHeight := 4 // header, status, input, help
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.sched.Interrupt()
			return m, nil
		case tea.KeyCtrlO:
			m.stepMode = !m.stepMode
			m.sched.SetStepMode(m.stepMode)
			return m, nil
		case tea.KeyCtrlN:
			m.sched.RevealNext()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if err := m.sched.Submit(text); err != nil {
				m.pushNotice(err.Error())
				return m, nil
			}
			m.input.Reset()
			return m, nil
		}

	case schedMsg:
		return m.applyUpdate(scheduler.Update(msg))

	case rosterReloadedMsg:
		_ = m.reg // roster colors and names re-resolve on next render
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// applyUpdate folds one scheduler notification into the model.
func (m Model) applyUpdate(u scheduler.Update) (tea.Model, tea.Cmd) {
	switch u.Kind {
	case scheduler.UpdateMessage:
		m.entries = append(m.entries, entry{kind: entryMessage, msg: u.Message})
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
	case scheduler.UpdateNotice:
		m.pushNotice(u.Notice)
	case scheduler.UpdateState:
		m.state = u.State
		if u.State == scheduler.StateIdle {
			m.invoking = ""
			m.pending = 0
		}
		if u.State == scheduler.StateDispatching {
			return m, m.spinner.Tick
		}
	case scheduler.UpdateInvoking:
		m.invoking = u.ParticipantID
	case scheduler.UpdateBuffered:
		m.pending = u.Pending
	}
	return m, nil
}

func (m *Model) pushNotice(text string) {
	m.entries = append(m.entries, entry{kind: entryNotice, notice: text})
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// displayName resolves a participant id for rendering.
func (m Model) displayName(id string) string {
	if p, ok := m.reg.Get(id); ok {
		return p.DisplayName()
	}
	return id
}

// renderTranscript renders all entries for the viewport.
func (m Model) renderTranscript() string {
	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderEntry(e))
	}
	return b.String()
}

// renderEntry renders one transcript entry. Secret messages are dimmed and
// carry a lock marker; system messages stand out.
func (m Model) renderEntry(e entry) string {
	if e.kind == entryNotice {
		return noticeStyle.Render("· " + e.notice)
	}

	msg := e.msg
	if msg.Origin == protocol.OriginSystem {
		return systemStyle.Render("— " + msg.Content + " —")
	}

	name := m.displayName(msg.SenderID)
	var nameStyle lipgloss.Style
	index := 0
	if p, ok := m.reg.Get(msg.SenderID); ok {
		for i, q := range m.reg.Participants() {
			if q.ID == p.ID {
				index = i
			}
		}
		nameStyle = senderStyle(p, index)
	} else {
		nameStyle = senderStyle(protocol.Participant{}, 0)
	}

	header := nameStyle.Render(name)
	body := msg.Content
	if msg.Secret() {
		header = secretMark + header + statusStyle.Render(" → "+m.displayName(msg.Visibility.TargetID))
		body = secretStyle.Render(body)
	}
	return fmt.Sprintf("%s\n%s", header, body)
}

// View renders the whole chat screen.
func (m Model) View() string {
	if !m.ready {
		return "loading…"
	}

	header := headerStyle.Render("consilium") + statusStyle.Render("  "+m.statusLine())
	help := helpStyle.Render("enter send · esc interrupt · ctrl+o step mode · ctrl+n reveal · ctrl+c quit")

	return strings.Join([]string{
		header,
		m.viewport.View(),
		m.statusBar(),
		m.input.View(),
		help,
	}, "\n")
}

// statusLine summarizes machine state for the header.
func (m Model) statusLine() string {
	switch m.state {
	case scheduler.StateDispatching:
		who := m.invoking
		if who != "" {
			who = m.displayName(who)
		}
		return m.spinner.View() + " " + who + " is responding"
	case scheduler.StateRevealPending:
		return fmt.Sprintf("%d response(s) held — ctrl+n to reveal", m.pending)
	default:
		return "idle"
	}
}

// statusBar shows step mode and roster size under the transcript.
func (m Model) statusBar() string {
	step := "off"
	if m.stepMode {
		step = "on"
	}
	return statusStyle.Render(fmt.Sprintf("step mode: %s · members: %d enabled", step, len(m.reg.EnabledAgents())))
}
