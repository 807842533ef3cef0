package rules

import (
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/state"
)

// ReviewTriggerThresholds bundles the write-review-trigger action's match
// parameters (spec §4.E's table).
type ReviewTriggerThresholds struct {
	CommitThreshold int
	StaleSeconds    int
}

// DefaultRules builds the five built-in rules in the priority order spec
// §4.E documents, wiring the named guards with the given config. st is the
// per-project state store used by guards that need counters/cooldowns;
// reviewFn supplies the since-review commit count and seconds-since-review
// a caller (the supervisor) computes once per tick.
func DefaultRules(st *state.Store, cfg GuardConfig, reviewThresholds ReviewTriggerThresholds, sinceReviewCommits func() int, secondsSinceReview func() int) []domain.Rule {
	isPermission := func(rec domain.ClassifierRecord, snap domain.WindowSnapshot) bool {
		return rec.Status == domain.StatusPermission || rec.Status == domain.StatusPermissionWithRemember
	}
	isIdleFamily := func(rec domain.ClassifierRecord, snap domain.WindowSnapshot) bool {
		return rec.Status == domain.StatusIdle || rec.Status == domain.StatusIdleLowContext
	}
	isIdleLowContext := func(rec domain.ClassifierRecord, snap domain.WindowSnapshot) bool {
		return rec.Status == domain.StatusIdleLowContext
	}
	isShell := func(rec domain.ClassifierRecord, snap domain.WindowSnapshot) bool {
		return rec.Status == domain.StatusShell
	}
	// sinceReviewCommits/secondsSinceReview are supplied already bound to
	// this project's key by the supervisor, which builds one rule set per
	// project (DefaultRules is called once per project per startup/reload).
	isIdleForReview := func(rec domain.ClassifierRecord, snap domain.WindowSnapshot) bool {
		if rec.Status != domain.StatusIdle {
			return false
		}
		commits := sinceReviewCommits()
		if commits >= reviewThresholds.CommitThreshold {
			return true
		}
		return commits > 0 && secondsSinceReview() >= reviewThresholds.StaleSeconds
	}

	return []domain.Rule{
		{
			Name:  "approve-permission",
			Match: isPermission,
			Guards: []domain.Guard{
				FixedCooldown(st, "permission", 60),
			},
			Action: domain.ActionApprovePermission,
		},
		{
			Name:  "write-review-trigger",
			Match: isIdleForReview,
			Guards: []domain.Guard{
				FixedCooldown(st, "review", 120),
			},
			Action: domain.ActionWriteReviewTrigger,
		},
		{
			Name:  "send-compact",
			Match: isIdleLowContext,
			Guards: []domain.Guard{
				FixedCooldown(st, "compact", 600),
			},
			Action:       domain.ActionSendCompact,
			TemplateName: "compact",
		},
		{
			Name:  "resume-shell",
			Match: isShell,
			Guards: []domain.Guard{
				FixedCooldown(st, "shell", 300),
			},
			Action: domain.ActionResumeShell,
		},
		{
			Name:  "send-nudge",
			Match: isIdleFamily,
			Guards: []domain.Guard{
				ManualTaskTTL(st, cfg.ManualTaskTTL),
				WorkingInertia(st, cfg.WorkingInertia),
				IdleConfirmations(st, cfg.IdleConfirmations),
				WeeklyLimitLow(cfg.WeeklyLimitLowPct),
				PRDDone(st),
				ExponentialBackoff(st, cfg.NudgeBackoffBase, cfg.NudgeBackoffMaxRetries),
			},
			Action:       domain.ActionSendNudge,
			TemplateName: "default",
		},
	}
}

