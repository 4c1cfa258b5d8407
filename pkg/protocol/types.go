// Package protocol defines the shared types exchanged between the router,
// scheduler, adapters, and stores, plus the typed error vocabulary used for
// failure discrimination across component boundaries.
package protocol

import (
	"strings"
	"time"
)

// Origin classifies who produced a message.
type Origin string

// Origin constants.
const (
	OriginUser   Origin = "user"
	OriginAgent  Origin = "agent"
	OriginSystem Origin = "system"
)

// Scope classifies message visibility.
type Scope string

// Scope constants.
const (
	ScopePublic Scope = "public"
	ScopeSecret Scope = "secret"
)

// Visibility describes who may see a message's content. A secret message is
// visible only to its sender and TargetID; everyone else sees an opaque
// placeholder when context is built.
type Visibility struct {
	Scope    Scope  `json:"scope"`
	TargetID string `json:"target_id,omitempty"`
}

// Public is the default visibility.
func Public() Visibility { return Visibility{Scope: ScopePublic} }

// SecretTo restricts visibility to the sender and one target.
func SecretTo(targetID string) Visibility {
	return Visibility{Scope: ScopeSecret, TargetID: targetID}
}

// VisibleTo reports whether a viewer may see the real content of a message
// sent by senderID under this visibility.
func (v Visibility) VisibleTo(senderID, viewerID string) bool {
	if v.Scope != ScopeSecret {
		return true
	}
	return viewerID == senderID || viewerID == v.TargetID
}

// Message is one immutable entry in a workspace conversation log.
// IDs are assigned by the log and are totally ordered per workspace.
type Message struct {
	ID                 int64      `json:"id"`
	Timestamp          time.Time  `json:"timestamp"`
	SenderID           string     `json:"sender_id"`
	Origin             Origin     `json:"origin"`
	Visibility         Visibility `json:"visibility"`
	AddressedTo        []string   `json:"addressed_to,omitempty"` // empty = broadcast
	RequiresResponse   bool       `json:"requires_response,omitempty"`
	Content            string     `json:"content"`
	RolePromptInjected bool       `json:"role_prompt_injected,omitempty"`
}

// Secret reports whether the message carries restricted visibility.
func (m Message) Secret() bool { return m.Visibility.Scope == ScopeSecret }

// ParticipantKind distinguishes the human from agent processes.
type ParticipantKind string

// Participant kinds.
const (
	KindHuman ParticipantKind = "human"
	KindAgent ParticipantKind = "agent"
)

// AdapterKind identifies the provider family an adapter speaks.
type AdapterKind string

// Adapter kinds. One per supported provider CLI family.
const (
	AdapterClaude AdapterKind = "claude"
	AdapterCodex  AdapterKind = "codex"
	AdapterGemini AdapterKind = "gemini"
)

// KnownAdapterKind reports whether k names a supported adapter family.
func KnownAdapterKind(k AdapterKind) bool {
	switch k {
	case AdapterClaude, AdapterCodex, AdapterGemini:
		return true
	}
	return false
}

// UserID is the fixed identifier of the human participant.
const UserID = "user"

// SystemID is the sender of engine-generated messages such as the interrupt
// marker.
const SystemID = "system"

// Participant is a configured chat identity: the human or one agent.
type Participant struct {
	ID       string          `toml:"id" json:"id"`
	Kind     ParticipantKind `toml:"kind" json:"kind"`
	Nickname string          `toml:"nickname" json:"nickname"`
	Avatar   string          `toml:"avatar,omitempty" json:"avatar,omitempty"`
	Color    string          `toml:"color,omitempty" json:"color,omitempty"`
	Adapter  AdapterKind     `toml:"adapter,omitempty" json:"adapter_type,omitempty"`
	Command  string          `toml:"command,omitempty" json:"command_path,omitempty"`
	RoleID   string          `toml:"role_id,omitempty" json:"role_id,omitempty"`
	Enabled  bool            `toml:"enabled" json:"enabled"`
}

// Agent reports whether the participant is an external agent process.
func (p Participant) Agent() bool { return p.Kind == KindAgent }

// DisplayName returns the nickname, falling back to the id.
func (p Participant) DisplayName() string {
	if strings.TrimSpace(p.Nickname) != "" {
		return p.Nickname
	}
	return p.ID
}

// Role is a reusable system-prompt template assignable to participants.
type Role struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// AgentSession holds the opaque continuation state one adapter maintains for
// one agent, plus the cadence counter for role-prompt reinjection.
type AgentSession struct {
	AgentID           string      `json:"agent_id"`
	AdapterType       AdapterKind `json:"adapter_type"`
	SessionToken      string      `json:"session_token,omitempty"`
	MessagesSinceRole int         `json:"messages_since_role_prompt"`
	LastSeenID        int64       `json:"last_seen_id"`
	CreatedAt         time.Time   `json:"created_at"`
	LastMessageAt     time.Time   `json:"last_message_at,omitzero"`
}

// TokenFor returns the continuation token if it was issued by the given
// adapter kind. A token is never replayed to a different adapter family.
func (s AgentSession) TokenFor(kind AdapterKind) string {
	if s.AdapterType != kind {
		return ""
	}
	return s.SessionToken
}

// Cadence values for role-prompt reinjection. 0 sends the role prompt only
// at initialization, 1 on every context build, N>1 on every Nth build.
const (
	CadenceOnce  = 0
	CadenceEvery = 1
)

// InterruptedMarker is the content of the terminal system message appended
// when a round is interrupted.
const InterruptedMarker = "Interrupted by user"

// SilentResponse reports whether agent output is the stay-silent convention:
// empty text or a run of dot-like characters.
func SilentResponse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		switch r {
		case '.', '․', '‥', '…', '‧', '⋯', '⁝':
		default:
			return false
		}
	}
	return true
}
