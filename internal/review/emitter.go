package review

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/gitutil"
	"github.com/watchloop/autopilot/internal/lock"
	"github.com/watchloop/autopilot/internal/prdverify"
	"github.com/watchloop/autopilot/internal/queue"
	"github.com/watchloop/autopilot/internal/state"
)

// Emitter runs the commit-detection and Layer-1/PRD-verify side of the
// review pipeline, invoked once per project per tick from the supervisor
// loop (spec §4.F, §4.G step 3). The write-review-trigger action itself is
// evaluated by the rule engine; Emitter.WriteTrigger is what the supervisor
// calls when that rule fires.
type Emitter struct {
	State      *state.Store
	Git        *gitutil.Client
	Queue      *queue.Queue
	PRD        *prdverify.Engine
	LockDir    string
	Layer1     Layer1Config
	LockStaleSeconds int
}

// CommitDetection is the outcome of one DetectCommits call.
type CommitDetection struct {
	Changed       bool
	OldHead       string
	NewHead       string
	NewCommits    int
	SinceReview   int
	Layer1Issues  string
	PRDIssues     string
}

// DetectCommits implements spec §4.F's emitter steps 1-5 for one project:
// compare stored HEAD to the live one, and on a change, reset the nudge
// attempt counter and stall-alert flag, mark recent activity, bump the
// since-review counter, close out any in-progress queue item, and kick off
// Layer-1 + PRD-verify checks. Step 6 (evaluate write-review-trigger) is the
// rule engine's job, driven by the SinceReview/last-review-ts state this
// writes.
func (e *Emitter) DetectCommits(ctx context.Context, project domain.Project) (CommitDetection, error) {
	key := project.Key
	newHead, err := e.Git.HeadCommit()
	if err != nil {
		return CommitDetection{}, err
	}

	oldHead, err := e.State.ReadScalar("watchdog-commits/" + key + "-head")
	if err != nil {
		return CommitDetection{}, err
	}

	det := CommitDetection{OldHead: oldHead, NewHead: newHead}
	if oldHead == newHead {
		return det, nil
	}
	det.Changed = true

	if err := e.State.WriteScalarAtomic("watchdog-commits/"+key+"-head", newHead); err != nil {
		return det, err
	}
	_ = e.State.WriteInt("nudge-attempts-"+key, 0)
	_ = e.State.Remove("alert-stalled-" + key)
	_ = e.State.Touch("last-working-" + key)

	if oldHead != "" {
		n, err := e.Git.CommitCountBetween(oldHead, newHead)
		if err == nil {
			det.NewCommits = n
			since := e.State.ReadInt("watchdog-commits/"+key+"-since-review", 0) + n
			_ = e.State.WriteInt("watchdog-commits/"+key+"-since-review", since)
			det.SinceReview = since
		}
	} else {
		// First observation ever; treat as the start of a fresh review window
		// rather than crediting an unknown number of historical commits.
		_ = e.State.WriteInt("watchdog-commits/"+key+"-since-review", 0)
	}

	if done, _, _ := e.Queue.Done(shortHash(newHead)); done {
		// Queue collaborator already persisted the completion; nothing further
		// to do here (spec §4.F step 3).
		_ = done
	}

	changedFiles, _ := e.Git.ChangedFiles(oldHead, newHead)
	commitSubject, _ := e.Git.LastCommitSubject()
	isFix := strings.HasPrefix(strings.ToLower(commitSubject), "fix:") || strings.HasPrefix(strings.ToLower(commitSubject), "fix(")

	if l1 := e.runLayer1(ctx, project, changedFiles, isFix); l1.Summary() != "" {
		det.Layer1Issues = l1.Summary()
	}

	if e.PRD != nil {
		if res, err := e.PRD.Verify(ctx, project.Dir, changedFiles, ""); err == nil {
			if !res.Passed {
				det.PRDIssues = res.Summary
				_ = e.State.WriteScalarAtomic("prd-issues-"+key, res.Summary)
			} else {
				_ = e.State.Remove("prd-issues-" + key)
			}
		}
	}

	return det, nil
}

// runLayer1 serializes per project via a short-lived lock and debounces via
// a 120s cooldown, per spec §4.F's "debounced by a 120 s cooldown, serialized
// by a per-project lock". Deduplicates against the last emitted hash so an
// unchanged finding set is never rewritten.
func (e *Emitter) runLayer1(ctx context.Context, project domain.Project, changedFiles []string, isFix bool) Layer1Result {
	key := project.Key
	cooldownKey := "layer1-cooldown-" + key
	if e.State.FreshWithin(cooldownKey, 120*time.Second) {
		return Layer1Result{}
	}

	staleSeconds := e.LockStaleSeconds
	if staleSeconds <= 0 {
		staleSeconds = 120
	}
	held, err := lock.Acquire(e.LockDir+"/layer1-"+key+".lock.d", staleSeconds)
	if err != nil {
		return Layer1Result{}
	}
	defer held.Release()

	result := RunLayer1(ctx, project.Dir, changedFiles, isFix, e.Layer1)
	_ = e.State.Touch(cooldownKey)

	lastHash, _ := e.State.ReadScalar("layer1-hash-" + key)
	if lastHash == result.Hash {
		return Layer1Result{}
	}
	_ = e.State.WriteScalarAtomic("layer1-hash-"+key, result.Hash)

	if result.Summary() == "" {
		_ = e.State.Remove("autocheck-issues-" + key)
	} else {
		_ = e.State.WriteScalarAtomic("autocheck-issues-"+key, result.Summary())
	}
	return result
}

// WriteTrigger atomically writes the review-trigger payload and sets the
// review cooldown; it deliberately does not reset the since-review counter
// (spec §4.F: "do not reset the since-review counter here" -- that only
// happens on consumer success, invariant I6/P4).
func (e *Emitter) WriteTrigger(project domain.Project) error {
	payload := domain.ReviewTriggerPayload{ProjectDir: project.Dir, Window: project.Window}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := e.State.WriteScalarAtomic("review-trigger-"+project.Key, string(data)); err != nil {
		return err
	}
	return e.State.Touch("review-" + project.Key)
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// SinceReviewCommits reads the persisted since-review counter, the closure
// DefaultRules' write-review-trigger match predicate needs.
func (e *Emitter) SinceReviewCommits(key string) int {
	return e.State.ReadInt("watchdog-commits/"+key+"-since-review", 0)
}

// SecondsSinceReview reports elapsed time since the last recorded review
// completion, or a very large number if no review has ever completed.
func (e *Emitter) SecondsSinceReview(key string) int {
	ts := e.State.ReadInt("watchdog-commits/"+key+"-last-review-ts", 0)
	if ts == 0 {
		return 1 << 30
	}
	return int(time.Now().Unix()) - ts
}

