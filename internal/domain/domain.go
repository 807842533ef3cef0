// Package domain holds the shared types that every other autopilot package
// builds on: the static project configuration, the per-window runtime state,
// and the rule/guard/action vocabulary the rule engine evaluates.
package domain

import "regexp"

// Status is one of the seven states the classifier can assign a window.
type Status string

const (
	StatusWorking                Status = "working"
	StatusIdle                   Status = "idle"
	StatusIdleLowContext         Status = "idle_low_context"
	StatusPermission              Status = "permission"
	StatusPermissionWithRemember Status = "permission_with_remember"
	StatusShell                  Status = "shell"
	StatusAbsent                 Status = "absent"
)

// UnknownContext is the sentinel context-remaining percentage used when the
// classifier could not extract a value from the captured pane text.
const UnknownContext = -1

var windowNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeWindowName reduces a raw tmux window name to the filesystem-safe
// key used for every state-store path derived from it. This is the single
// point where invariant I2 is enforced: callers must never interpolate a raw
// window name into a path themselves.
func SanitizeWindowName(raw string) string {
	return windowNameSanitizer.ReplaceAllString(raw, "_")
}

// Project is an immutable configuration record loaded once at startup.
type Project struct {
	// Window is the raw tmux window name as configured.
	Window string
	// Key is the sanitized form of Window, used for every state-store path.
	Key string
	// Dir is the absolute path to the project's git working tree.
	Dir string
	// DefaultNudge is sent when a rule's template has no more specific
	// message to render; empty means fall back to the built-in default.
	DefaultNudge string
}

// NewProject constructs a Project, deriving the sanitized key from window.
func NewProject(window, dir, defaultNudge string) Project {
	return Project{
		Window:       window,
		Key:          SanitizeWindowName(window),
		Dir:          dir,
		DefaultNudge: defaultNudge,
	}
}

// WindowSnapshot is the per-window JSON document written atomically at the
// end of each classifier tick (state/<window>.json in spec terms).
type WindowSnapshot struct {
	Status           Status `json:"status"`
	ContextNum       int    `json:"context_num"`
	Head             string `json:"head"`
	CommitMsg        string `json:"commit_msg"`
	CommitTime       int64  `json:"commit_time"`
	Commits30m       int    `json:"commits_30m"`
	WorkingNoCommit  int    `json:"working_no_commit"`
	TokensToday      int    `json:"tokens_today"`
	LastCheck        int64  `json:"last_check"`
}

// ActionKind names one of the five built-in recovery actions.
type ActionKind string

const (
	ActionApprovePermission  ActionKind = "approve-permission"
	ActionSendNudge          ActionKind = "send-nudge"
	ActionSendCompact        ActionKind = "send-compact"
	ActionResumeShell        ActionKind = "resume-shell"
	ActionWriteReviewTrigger ActionKind = "write-review-trigger"
)

// GuardVerdict is the result of evaluating one guard.
type GuardVerdict struct {
	Pass   bool
	Reason string // populated when Pass is false, for the decision-trace log
}

// Pass is the zero-ceremony PASS verdict.
func Pass() GuardVerdict { return GuardVerdict{Pass: true} }

// Skip returns a SKIP verdict carrying a human-readable reason.
func Skip(reason string) GuardVerdict { return GuardVerdict{Pass: false, Reason: reason} }

// ClassifierRecord is the Classifier's per-tick output: the resolved status
// plus every field extracted alongside it, independent of persisted state.
type ClassifierRecord struct {
	Status            Status
	ContextPct        int // UnknownContext when not observed
	WeeklyLimitPct    int // UnknownContext when not observed
	ManualBlockReason string
	LastActivity      string // snippet: the matched busy/prompt line
	PaneText          string
	AssistantPID      int // 0 when no live assistant process was found
}

// NudgeContext is the per-tick variable bag computed for template expansion
// when rendering a send-nudge instruction.
type NudgeContext struct {
	Phase              string // dev/review/test/deploy, derived from project status
	PRDRemaining       int
	LastCommitSubject  string
	LastCommitType     string // conventional-commit prefix, e.g. "feat", "fix"
	FeatStreak         int
	PendingIssues      string
	PostCompactPayload string
}

// ReviewTriggerPayload is the JSON body written to review-trigger-<window>.
type ReviewTriggerPayload struct {
	ProjectDir string `json:"project_dir"`
	Window     string `json:"window"`
}

// TriggerState names the position of a ReviewTrigger in its lifecycle, per
// spec's emitted -> deferred -> sent -> awaiting_output -> parsed -> done
// state machine. It is informational (log trace only); the actual state is
// reconstructed each run from which flag/marker files exist.
type TriggerState string

const (
	TriggerEmitted        TriggerState = "emitted"
	TriggerDeferred        TriggerState = "deferred"
	TriggerSent            TriggerState = "sent"
	TriggerAwaitingOutput TriggerState = "awaiting_output"
	TriggerParsed          TriggerState = "parsed"
	TriggerDone            TriggerState = "done"
)
