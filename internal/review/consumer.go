package review

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/gitutil"
	"github.com/watchloop/autopilot/internal/injector"
	"github.com/watchloop/autopilot/internal/lock"
	"github.com/watchloop/autopilot/internal/state"
)

// Injector is the subset of *injector.Injector the consumer needs, kept as
// an interface so tests can substitute a fake without a real tmux session.
type Injector interface {
	Inject(ctx context.Context, session, window, text string) error
}

var _ Injector = (*injector.Injector)(nil)

// GitFactory returns a gitutil.Client rooted at dir; the consumer processes
// many projects and needs a fresh client per project directory.
type GitFactory func(dir string) *gitutil.Client

// Consumer implements the two-phase review-trigger consumer protocol (spec
// §4.F). One Consumer instance is shared across all projects; ConsumeAll
// acquires the single consumer lock so concurrent invocations (e.g. two cron
// firings) never process the same trigger twice.
type Consumer struct {
	State      *state.Store
	NewGit     GitFactory
	Inject     Injector
	SessionName string
	LockDir    string
	HistoryDir string

	// StaleSeconds bounds how long a non-idle project may hold a trigger
	// before the consumer proceeds anyway (spec step 2; default 2h).
	StaleSeconds int
	// LockStaleSeconds bounds how long the consumer lock itself may be held
	// before a new ConsumeAll call treats it as abandoned (default 60s).
	// Distinct from StaleSeconds: this guards the lock's own liveness, not
	// the trigger's escape-valve age.
	LockStaleSeconds int
	// InProgressWindow is the freshness window for review-in-progress-<w>
	// before the consumer force-checks for output (spec step 3).
	InProgressWindow time.Duration
}

// IsIdle reports whether the given project window is currently idle, used
// by the consumer to decide whether to defer a fresh trigger (spec step 2).
// The supervisor supplies this from its own most recent classifier record.
type IsIdle func(window string) bool

// IsIdleForReview is the single definition of "idle enough to deliver a
// review trigger immediately" shared by every IsIdle implementation:
// idle_low_context is still not working, so it counts too, same as plain
// idle -- only the stale-limit escape valve should ever force delivery into
// a genuinely busy window.
func IsIdleForReview(status domain.Status) bool {
	return status == domain.StatusIdle || status == domain.StatusIdleLowContext
}

// ConsumeAll acquires the consumer lock and processes every project's
// pending trigger once. A lock-busy condition is treated as a cooperative
// skip (spec §7), not an error.
func (c *Consumer) ConsumeAll(ctx context.Context, projects []domain.Project, isIdle IsIdle) ([]Outcome, error) {
	lockStaleSeconds := c.LockStaleSeconds
	if lockStaleSeconds <= 0 {
		lockStaleSeconds = 60
	}
	held, err := lock.Acquire(c.LockDir+"/consume-review-trigger.lock.d", lockStaleSeconds)
	if err == lock.ErrNotAcquired {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer held.Release()

	var outcomes []Outcome
	for _, p := range projects {
		out, err := c.processTrigger(ctx, p, isIdle)
		if err != nil {
			continue
		}
		if out.Advanced {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, nil
}

// Outcome records what happened to one project's trigger during a
// ConsumeAll pass, for logging/history purposes.
type Outcome struct {
	Window   string
	State    domain.TriggerState
	Advanced bool
	Clean    bool
	Summary  string
}

func (c *Consumer) processTrigger(ctx context.Context, project domain.Project, isIdle IsIdle) (Outcome, error) {
	key := project.Key
	triggerKey := "review-trigger-" + key
	if !c.State.Exists(triggerKey) {
		return Outcome{}, nil
	}

	raw, err := c.State.ReadScalar(triggerKey)
	if err != nil {
		return Outcome{}, err
	}
	var payload domain.ReviewTriggerPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Malformed state is tolerated by readers (spec §7); drop the
		// unparseable trigger so a future one can take its place.
		_ = c.State.Remove(triggerKey)
		return Outcome{}, nil
	}

	triggerAge := c.State.Age(triggerKey)
	staleLimit := time.Duration(c.StaleSeconds) * time.Second
	if staleLimit <= 0 {
		staleLimit = 2 * time.Hour
	}
	if !isIdle(project.Window) && triggerAge < staleLimit {
		return Outcome{Window: project.Window, State: domain.TriggerDeferred}, nil
	}

	inProgKey := "review-in-progress-" + key
	outputPath := filepath.Join(c.State.BaseDir, "layer2-review-"+key+".txt")

	if c.State.FreshWithin(inProgKey, c.inProgressWindow()) {
		content, ok := readNonEmpty(outputPath)
		if !ok {
			// Still waiting on the reviewer; non-blocking, try again next tick.
			return Outcome{Window: project.Window, State: domain.TriggerAwaitingOutput}, nil
		}
		_ = c.State.Remove(inProgKey)
		return c.parseAndFinish(project, triggerKey, key, content)
	}

	// Not yet sent (or the in-progress flag expired without output -- treated
	// as abandoned and resent, since stale TTLs always favor forward progress
	// over an indefinitely wedged trigger).
	git := c.NewGit(project.Dir)
	diffRange, changedFiles, err := c.diffRange(git, key)
	if err != nil {
		return Outcome{}, err
	}

	os.Remove(outputPath)
	instruction := composeInstruction(diffRange, changedFiles, outputPath)

	if err := c.Inject.Inject(ctx, c.SessionName, project.Window, instruction); err != nil {
		return Outcome{Window: project.Window, State: domain.TriggerSent}, nil
	}
	_ = c.State.Touch(inProgKey)
	return Outcome{Window: project.Window, State: domain.TriggerSent}, nil
}

func (c *Consumer) inProgressWindow() time.Duration {
	if c.InProgressWindow <= 0 {
		return 10 * time.Minute
	}
	return c.InProgressWindow
}

// diffRange computes last-review-commit..HEAD, falling back to a bounded
// recent-commit window when no prior review commit is recorded (spec §4.F
// step 4: "a bounded fallback window").
func (c *Consumer) diffRange(git *gitutil.Client, key string) (rangeExpr string, changedFiles []string, err error) {
	head, err := git.HeadCommit()
	if err != nil {
		return "", nil, err
	}
	lastReview, _ := c.State.ReadScalar("watchdog-commits/" + key + "-last-review-head")
	oldRef := lastReview
	if oldRef == "" {
		oldRef = head + "~20"
	}
	rangeExpr = oldRef + ".." + head
	changedFiles, _ = git.ChangedFiles(oldRef, head)
	return rangeExpr, changedFiles, nil
}

const changedFilePreviewCap = 20

func composeInstruction(diffRange string, changedFiles []string, outputPath string) string {
	preview := changedFiles
	truncated := false
	if len(preview) > changedFilePreviewCap {
		preview = preview[:changedFilePreviewCap]
		truncated = true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Please review the changes in `%s` (%d files changed", diffRange, len(changedFiles))
	if truncated {
		fmt.Fprintf(&b, ", showing first %d", changedFilePreviewCap)
	}
	b.WriteString("):\n")
	for _, f := range preview {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	if truncated {
		fmt.Fprintf(&b, "  ... and %d more\n", len(changedFiles)-len(preview))
	}
	fmt.Fprintf(&b, "\nWrite CLEAN (exactly, nothing else) to %s if there are no issues, "+
		"otherwise write a short summary of each issue found to that same path.\n", outputPath)
	return b.String()
}

func readNonEmpty(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", false
	}
	return content, true
}

func (c *Consumer) parseAndFinish(project domain.Project, triggerKey, key, content string) (Outcome, error) {
	clean := strings.EqualFold(strings.TrimSpace(content), "clean")
	now := time.Now()

	head, _ := c.State.ReadScalar("watchdog-commits/" + key + "-head")

	if clean {
		_ = c.State.WriteInt("watchdog-commits/"+key+"-since-review", 0)
		_ = c.State.WriteScalarAtomic("watchdog-commits/"+key+"-last-review-head", head)
		_ = c.State.WriteInt("watchdog-commits/"+key+"-last-review-ts", int(now.Unix()))
		_ = c.State.Remove("autocheck-issues-" + key)
		_ = c.State.WriteInt("nudge-attempts-"+key, 0)
		_ = c.State.Remove("alert-stalled-" + key)
		_ = c.State.WriteInt("review-clean-"+key, 1)
	} else {
		_ = c.State.WriteScalarAtomic("autocheck-issues-"+key, preview(content))
		_ = c.State.WriteInt("review-clean-"+key, 0)
		_ = c.State.WriteInt("watchdog-commits/"+key+"-since-review", 0)
		_ = c.State.WriteScalarAtomic("watchdog-commits/"+key+"-last-review-head", head)
		_ = c.State.WriteInt("watchdog-commits/"+key+"-last-review-ts", int(now.Unix()))
	}

	if err := c.finishTrigger(triggerKey); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Window: project.Window, State: domain.TriggerDone, Advanced: true, Clean: clean, Summary: preview(content)}
	if c.HistoryDir != "" {
		_ = appendHistory(c.HistoryDir, key, outcome, now)
	}
	return outcome, nil
}

func preview(content string) string {
	const maxLen = 200
	content = strings.TrimSpace(content)
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "…"
}

// finishTrigger implements the mv-then-rm double-consume guard: rename the
// trigger file to a .done sibling (an atomic filesystem operation — only one
// concurrent caller can win it), then remove the renamed file. A second
// caller racing the same trigger finds the rename already gone and treats
// the trigger as already consumed.
func (c *Consumer) finishTrigger(triggerKey string) error {
	src := filepath.Join(c.State.BaseDir, triggerKey)
	done := src + ".done"
	if err := os.Rename(src, done); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(done)
}
