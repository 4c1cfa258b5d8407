package protocol

import (
	"fmt"
	"time"
)

// AddressError reports an unresolved mention in user input. The submission
// is rejected before anything is dispatched or recorded.
type AddressError struct {
	Token string // the @-token that failed to resolve
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("unknown participant %q in address", e.Token)
}

// SpawnError reports a failure to start an adapter's child process.
// The participant is unreachable for the round; other participants proceed.
type SpawnError struct {
	ParticipantID string
	Command       string
	Err           error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s for %s: %v", e.Command, e.ParticipantID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ProtocolError reports unparsable adapter output. Raw output is retained
// for diagnostics.
type ProtocolError struct {
	ParticipantID string
	Raw           string
	Err           error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed output from %s: %v", e.ParticipantID, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError reports a forced termination after the invocation deadline.
// Non-fatal: isolated to the one participant.
type TimeoutError struct {
	ParticipantID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.ParticipantID, e.Timeout)
}

// SessionRejectedError reports that the provider refused the stored
// continuation token. The session manager clears the token and retries once
// without it before surfacing a hard failure.
type SessionRejectedError struct {
	ParticipantID string
	Token         string
	Reason        string
}

func (e *SessionRejectedError) Error() string {
	return fmt.Sprintf("%s rejected session token: %s", e.ParticipantID, e.Reason)
}

// StorageError reports a failed durable append. Fatal for the whole round:
// nothing may be marked delivered without a successful write.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("durable append to %s failed: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
