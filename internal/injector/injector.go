// Package injector delivers a single logical message into an assistant's
// tmux pane and verifies it was accepted, per spec §4.D. Three strategies
// are tried in escalating order depending on message size; a pre-send check
// refuses to send into a pane that isn't actually running the assistant
// (safety threat T1 -- an injector that writes into a bare shell would
// execute an attacker-controlled command), and a two-phase post-send
// capture verifies the message landed before reporting success.
package injector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/lock"
	"github.com/watchloop/autopilot/internal/procwalk"
	"github.com/watchloop/autopilot/internal/state"
)

// Reason is one of the documented failure reasons (spec §4.D).
type Reason string

const (
	ReasonNoSession    Reason = "no_session"
	ReasonNoWindow     Reason = "no_window"
	ReasonNoAssistant  Reason = "no_assistant"
	ReasonLockBusy     Reason = "lock_busy"
	ReasonVerifyFailed Reason = "verify_failed"
)

// Error wraps a failed injection with its documented reason.
type Error struct {
	Reason Reason
}

func (e *Error) Error() string { return string(e.Reason) }

// Multiplexer is the tmux surface the injector needs.
type Multiplexer interface {
	SessionHasWindow(session, window string) (bool, error)
	PanePID(session, window string) (int, error)
	CapturePane(session, window string, lines int) (string, error)
	SendKeys(ctx context.Context, session, window, text string, enter bool) error
	LoadBuffer(ctx context.Context, bufferName, filePath string) error
	PasteBuffer(ctx context.Context, bufferName, session, window string) error
	DeleteBuffer(ctx context.Context, bufferName string) error
}

// BufferWriter persists text to a temp file for bracketed-paste loading and
// returns its path, owned by the caller to remove when done.
type BufferWriter func(text string) (path string, cleanup func(), err error)

const (
	directThreshold  = 300
	chunkedThreshold = 800
	chunkSize        = 100
)

var chunkDelay = 200 * time.Millisecond

// Injector sends text into a tmux pane and verifies delivery.
type Injector struct {
	Mux        Multiplexer
	State      *state.Store
	LockDir    string // base directory for per-window injector locks
	WriteChunk BufferWriter
	Sleep      func(time.Duration)
	bufCounter uint64
}

// New builds an Injector. sleep defaults to time.Sleep; pass a fake in
// tests to avoid real delays.
func New(mux Multiplexer, st *state.Store, lockDir string, writeChunk BufferWriter, sleep func(time.Duration)) *Injector {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Injector{Mux: mux, State: st, LockDir: lockDir, WriteChunk: writeChunk, Sleep: sleep}
}

// Inject delivers text into session:window, retrying once at an escalated
// strategy level on verification failure (at most two strategies per call).
func (in *Injector) Inject(ctx context.Context, session, window, text string) error {
	key := domain.SanitizeWindowName(window)

	exists, err := in.Mux.SessionHasWindow(session, window)
	if err != nil {
		return &Error{Reason: ReasonNoSession}
	}
	if !exists {
		return &Error{Reason: ReasonNoWindow}
	}

	if !in.assistantRunning(session, window) {
		return &Error{Reason: ReasonNoAssistant}
	}

	lockPath := in.LockDir + "/" + key + ".lock.d"
	l, err := lock.Acquire(lockPath, 10)
	if errors.Is(err, lock.ErrNotAcquired) {
		return &Error{Reason: ReasonLockBusy}
	}
	if err != nil {
		return err
	}
	defer l.Release()

	strategy := strategyFor(len(text))
	preSnapshot, _ := in.Mux.CapturePane(session, window, 25)

	if err := in.send(ctx, session, window, text, strategy); err != nil {
		return err
	}
	if in.verify(session, window, text, preSnapshot) {
		in.onSuccess(key)
		return nil
	}

	// Re-observe: verification may simply have lost the race against a
	// busy marker that appeared a moment later.
	if pane, err := in.Mux.CapturePane(session, window, 25); err == nil && hasBusyMarker(pane) {
		in.onSuccess(key)
		return nil
	}

	if strategy == strategyBracketedPaste {
		return &Error{Reason: ReasonVerifyFailed}
	}
	escalated := nextStrategy(strategy)
	if err := in.send(ctx, session, window, text, escalated); err != nil {
		return err
	}
	if in.verify(session, window, text, preSnapshot) {
		in.onSuccess(key)
		return nil
	}
	return &Error{Reason: ReasonVerifyFailed}
}

func (in *Injector) assistantRunning(session, window string) bool {
	pid, err := in.Mux.PanePID(session, window)
	if err != nil || pid <= 0 {
		return false
	}
	_, found := procwalk.FindAssistant(pid)
	return found
}

func (in *Injector) onSuccess(windowKey string) {
	if in.State == nil {
		return
	}
	_ = in.State.Touch("manual-task-" + windowKey)
}

type strategy int

const (
	strategyDirect strategy = iota
	strategyChunked
	strategyBracketedPaste
)

func strategyFor(n int) strategy {
	switch {
	case n <= directThreshold:
		return strategyDirect
	case n <= chunkedThreshold:
		return strategyChunked
	default:
		return strategyBracketedPaste
	}
}

func nextStrategy(s strategy) strategy {
	if s < strategyBracketedPaste {
		return s + 1
	}
	return s
}

func (in *Injector) send(ctx context.Context, session, window, text string, s strategy) error {
	switch s {
	case strategyDirect:
		in.Sleep(50 * time.Millisecond)
		return in.Mux.SendKeys(ctx, session, window, text, true)
	case strategyChunked:
		for i := 0; i < len(text); i += chunkSize {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			if err := in.Mux.SendKeys(ctx, session, window, text[i:end], false); err != nil {
				return err
			}
			in.Sleep(chunkDelay)
		}
		return in.Mux.SendKeys(ctx, session, window, "", true)
	case strategyBracketedPaste:
		if in.WriteChunk == nil {
			return fmt.Errorf("injector: bracketed paste requires a BufferWriter")
		}
		path, cleanup, err := in.WriteChunk(text)
		if err != nil {
			return err
		}
		defer cleanup()

		bufName := in.bufferName(window)
		if err := in.Mux.LoadBuffer(ctx, bufName, path); err != nil {
			return err
		}
		defer in.Mux.DeleteBuffer(ctx, bufName)

		if err := in.Mux.PasteBuffer(ctx, bufName, session, window); err != nil {
			return err
		}
		return in.Mux.SendKeys(ctx, session, window, "", true)
	}
	return nil
}

// bufferName includes the sanitized window, this process's PID, and a
// monotonic counter plus a UUID suffix so concurrent sends across windows
// -- or retries within one call -- never collide (spec §4.D).
func (in *Injector) bufferName(window string) string {
	n := atomic.AddUint64(&in.bufCounter, 1)
	return "autopilot-" + domain.SanitizeWindowName(window) + "-" +
		strconv.Itoa(os.Getpid()) + "-" + strconv.FormatUint(n, 10) + "-" + uuid.NewString()
}

// verify implements the two-phase post-send check (spec §4.D).
func (in *Injector) verify(session, window, sent, preSnapshot string) bool {
	prefix := sent
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}

	for _, delay := range []time.Duration{500 * time.Millisecond, 500 * time.Millisecond} {
		in.Sleep(delay)
		pane, err := in.Mux.CapturePane(session, window, 25)
		if err != nil {
			continue
		}
		if prefix != "" && strings.Contains(pane, prefix) {
			return true
		}
		if hasBusyMarker(pane) {
			return true
		}
		if promptChanged(preSnapshot, pane, prefix) {
			return true
		}
	}
	return false
}

func hasBusyMarker(pane string) bool {
	for _, m := range []string{"esc to interrupt", "Working", "Thinking"} {
		if strings.Contains(pane, m) {
			return true
		}
	}
	return false
}

// promptChanged reports whether the prompt-glyph line differs from the
// pre-send snapshot in a way that isn't simply an empty line or a
// repetition of the sent prefix (spec §4.D).
func promptChanged(pre, post, prefix string) bool {
	preLine := lastPromptLine(pre)
	postLine := lastPromptLine(post)
	if postLine == "" || postLine == preLine {
		return false
	}
	if prefix != "" && strings.Contains(postLine, prefix) {
		return false
	}
	return true
}

func lastPromptLine(pane string) string {
	lines := strings.Split(pane, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			return line
		}
	}
	return ""
}
