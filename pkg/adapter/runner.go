package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/eavookindroid/consilium-agent-tui/pkg/protocol"
)

// maxLineBytes bounds a single streamed line. Provider CLIs emit entire
// responses as one JSON line, so this has to be generous.
const maxLineBytes = 10 * 1024 * 1024

// killGrace is how long the process group gets after SIGTERM before SIGKILL.
const killGrace = 3 * time.Second

// lineHandler consumes one non-empty stdout line. Returning done stops
// parsing (remaining output is drained); returning an error kills the
// process group and aborts the invocation.
type lineHandler func(line []byte) (done bool, err error)

// procResult reports how the child exited.
type procResult struct {
	stderr  string
	exitErr error // non-nil on nonzero exit
}

// run starts argv in its own process group, feeds each stdout line to
// handle, and captures stderr. On context cancellation or timeout the whole
// group gets SIGTERM, a grace period, then SIGKILL, so descendants
// (node, shells) cannot outlive the invocation.
func run(ctx context.Context, participantID string, argv []string, timeout time.Duration, handle lineHandler) (procResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv is the participant's configured command
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return procResult{}, &protocol.SpawnError{ParticipantID: participantID, Command: argv[0], Err: err}
	}

	if err := cmd.Start(); err != nil {
		return procResult{}, &protocol.SpawnError{ParticipantID: participantID, Command: argv[0], Err: err}
	}
	pgid := cmd.Process.Pid

	// Kill the group when the caller cancels or the deadline expires.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killGroup(pgid)
		case <-watchDone:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var handleErr error
	done := false
	for scanner.Scan() {
		if done {
			continue // drain to EOF so Wait is safe
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		done, handleErr = handle(line)
		if handleErr != nil {
			killGroup(pgid)
			done = true
		}
	}
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	close(watchDone)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return procResult{}, &protocol.TimeoutError{ParticipantID: participantID, Timeout: timeout}
		}
		return procResult{}, ctxErr
	}
	if handleErr != nil {
		return procResult{}, handleErr
	}

	return procResult{
		stderr:  strings.TrimSpace(stderr.String()),
		exitErr: waitErr,
	}, nil
}

// killGroup terminates the process group: SIGTERM, grace, then SIGKILL.
func killGroup(pgid int) {
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return // already gone
	}
	deadline := time.After(killGrace)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
			return
		case <-tick.C:
			if syscall.Kill(pgid, 0) != nil {
				return
			}
		}
	}
}

// sessionRejected reports whether a provider error message says the resume
// token no longer names a live session. Providers word this differently:
// "thread not found", "session not found", "No conversation found with
// session ID ...".
func sessionRejected(msg string) bool {
	lowered := strings.ToLower(msg)
	if !strings.Contains(lowered, "session") && !strings.Contains(lowered, "thread") && !strings.Contains(lowered, "conversation") {
		return false
	}
	for _, phrase := range []string{"not found", "no conversation found", "no session found", "no thread found"} {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
