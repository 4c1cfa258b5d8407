// Package router is the addressing engine: it parses @-address tokens from
// user input, computes message visibility, builds each participant's context
// window, and owns the role-prompt cadence decision.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// Resolver maps a case-insensitive name to a configured participant.
// *registry.Registry satisfies it.
type Resolver interface {
	Resolve(name string) (protocol.Participant, bool)
}

// AddressKind classifies a parsed submission.
type AddressKind int

// Address kinds.
const (
	Broadcast AddressKind = iota // no addressing: every enabled agent responds
	Mentions                     // @Name set: only the mentioned agents respond
	Secret                       // @@Name: one target, restricted visibility
)

// Address is the routing decision for one user submission.
type Address struct {
	Kind         AddressKind
	Mentions     []protocol.Participant // resolved, in mention order, deduplicated
	SecretTarget protocol.Participant
}

// AddressedTo returns the participant ids the message is addressed to
// (empty for broadcast).
func (a Address) AddressedTo() []string {
	switch a.Kind {
	case Secret:
		return []string{a.SecretTarget.ID}
	case Mentions:
		ids := make([]string, len(a.Mentions))
		for i, p := range a.Mentions {
			ids[i] = p.ID
		}
		return ids
	default:
		return nil
	}
}

// Visibility returns the message visibility implied by the address.
func (a Address) Visibility() protocol.Visibility {
	if a.Kind == Secret {
		return protocol.SecretTo(a.SecretTarget.ID)
	}
	return protocol.Public()
}

var (
	secretPattern  = regexp.MustCompile(`@@(\w+(?:\.\w+)*)`)
	mentionPattern = regexp.MustCompile(`@(\w+(?:\.\w+)*)`)
)

// broadcastAliases address every participant; they never resolve to one.
var broadcastAliases = map[string]bool{"all": true, "everyone": true}

// Parse extracts the address from user input. `@@Name` takes precedence
// over `@Name` mentions; only the first `@@` is honored. An unresolved name
// fails the whole submission: nothing is dispatched and nothing recorded.
func Parse(input string, resolver Resolver) (Address, error) {
	if secrets := secretPattern.FindAllStringSubmatch(input, -1); len(secrets) > 0 {
		name := secrets[0][1]
		target, ok := resolver.Resolve(name)
		if !ok {
			return Address{}, &protocol.AddressError{Token: "@@" + name}
		}
		return Address{Kind: Secret, SecretTarget: target}, nil
	}

	// The secret branch above returns early, so by this point the input
	// contains no @@ spans for the mention scan to double-count.
	var mentions []protocol.Participant
	seen := map[string]bool{}
	for _, match := range mentionPattern.FindAllStringSubmatch(input, -1) {
		name := match[1]
		if broadcastAliases[strings.ToLower(name)] {
			return Address{Kind: Broadcast}, nil
		}
		p, ok := resolver.Resolve(name)
		if !ok {
			return Address{}, &protocol.AddressError{Token: "@" + name}
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		mentions = append(mentions, p)
	}

	if len(mentions) == 0 {
		return Address{Kind: Broadcast}, nil
	}
	return Address{Kind: Mentions, Mentions: mentions}, nil
}

// ResponseSet computes the agents invoked for a round, in dispatch order.
// Broadcast invokes every enabled agent in registry order. Mentions invoke
// exactly the mentioned enabled agents, mention order first. Secret invokes
// only the target (if enabled). Each participant appears at most once.
func (a Address) ResponseSet(enabledAgents []protocol.Participant) []protocol.Participant {
	enabled := map[string]protocol.Participant{}
	for _, p := range enabledAgents {
		enabled[p.ID] = p
	}

	switch a.Kind {
	case Secret:
		if p, ok := enabled[a.SecretTarget.ID]; ok {
			return []protocol.Participant{p}
		}
		return nil
	case Mentions:
		var out []protocol.Participant
		for _, m := range a.Mentions {
			if p, ok := enabled[m.ID]; ok {
				out = append(out, p)
			}
		}
		return out
	default:
		out := make([]protocol.Participant, len(enabledAgents))
		copy(out, enabledAgents)
		return out
	}
}

// placeholder is what a participant outside {sender, target} sees in place
// of a secret message. The id is preserved so the transcript stays
// continuous without leaking content.
const placeholder = "[private exchange]"

// headerTemplate frames each entry the way agents are instructed to quote
// message ids.
const headerTemplate = `HEADER:{"#msg_id#": %d}`

// BuildContext renders the visible slice of the window for one viewer:
// messages after sinceID, excluding the viewer's own, with secret content
// replaced by an opaque placeholder unless the viewer is sender or target.
// Returns the formatted context and the highest id considered (the caller's
// next sinceID), which advances even when everything was filtered out.
func BuildContext(window []protocol.Message, viewer protocol.Participant, sinceID int64, displayName func(id string) string) (string, int64) {
	lastSeen := sinceID
	var b strings.Builder

	for _, msg := range window {
		if msg.ID <= sinceID {
			continue
		}
		if msg.ID > lastSeen {
			lastSeen = msg.ID
		}
		if msg.SenderID == viewer.ID {
			continue
		}

		content := msg.Content
		if !msg.Visibility.VisibleTo(msg.SenderID, viewer.ID) {
			content = placeholder
		}

		to := "all"
		if len(msg.AddressedTo) > 0 {
			names := make([]string, len(msg.AddressedTo))
			for i, id := range msg.AddressedTo {
				names[i] = displayName(id)
			}
			to = strings.Join(names, ", ")
		}

		fmt.Fprintf(&b, headerTemplate+"\n", msg.ID)
		fmt.Fprintf(&b, "from: %s\n", displayName(msg.SenderID))
		fmt.Fprintf(&b, "to: %s\n\n", to)
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return strings.TrimRight(b.String(), "\n"), lastSeen
}

// InjectRolePrompt decides whether this context build carries the role
// prompt, advancing the session's cadence counter. Initialization always
// injects and leaves the counter alone. Cadence 0 injects only at
// initialization, 1 on every build, N>1 on every Nth build with the counter
// resetting after each injection.
func InjectRolePrompt(sess *protocol.AgentSession, cadence int, isInit bool) bool {
	if isInit {
		return true
	}
	switch cadence {
	case protocol.CadenceOnce:
		return false
	case protocol.CadenceEvery:
		return true
	}
	sess.MessagesSinceRole++
	if sess.MessagesSinceRole >= cadence {
		sess.MessagesSinceRole = 0
		return true
	}
	return false
}
