// Package rules implements the stateless-per-call rule engine (spec §4.E):
// an ordered rule list, each guarded by a left-to-right short-circuiting
// guard chain, executing at most one action per project per tick. Guard
// config shape (named thresholds, enable/disable via zero value) is
// grounded on the teacher's rpiLoopSupervisorConfig policy-enum style in
// rpi_loop_supervisor.go.
package rules

import (
	"fmt"
	"time"

	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/state"
)

// GuardConfig bundles every tunable a built-in guard needs, mirroring
// internal/config.ThresholdsConfig's fields.
type GuardConfig struct {
	ManualTaskTTL          time.Duration
	NudgeBackoffBase       time.Duration
	NudgeBackoffMaxRetries int
	WorkingInertia         time.Duration
	IdleConfirmations      int
	LowContextThreshold    int
	WeeklyLimitLowPct      int
}

// ManualTaskTTL returns a guard that SKIPs while a fresh manual-task flag
// file exists, deleting it once it goes stale (spec §4.E).
func ManualTaskTTL(st *state.Store, ttl time.Duration) domain.Guard {
	return domain.Guard{
		Name: "manual_task_ttl",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			flag := "manual-task-" + key
			if !st.Exists(flag) {
				return domain.Pass()
			}
			if st.Age(flag) <= ttl {
				return domain.Skip("manual task grace window active")
			}
			_ = st.Remove(flag)
			return domain.Pass()
		},
	}
}

// PRDDone returns a guard that SKIPs nudges once the project's TODO list is
// empty and review is CLEAN, unless the queue has a next item or there are
// known review issues (bypass conditions), per spec §4.E.
func PRDDone(st *state.Store) domain.Guard {
	return domain.Guard{
		Name: "prd_done",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			remaining := st.ReadInt("prd-remaining-"+key, -1)
			if remaining != 0 {
				return domain.Pass()
			}
			hasIssues := st.Exists("autocheck-issues-" + key)
			hasPendingVerify := st.Exists("prd-verify-pending-" + key)
			reviewClean := st.ReadInt("review-clean-"+key, 0) == 1
			if !reviewClean || hasIssues || hasPendingVerify {
				return domain.Pass()
			}
			if st.Exists("queue-next-" + key) {
				return domain.Pass()
			}
			return domain.Skip("prd done, review clean, nothing queued")
		},
	}
}

// ExponentialBackoff returns a guard computing effective_cooldown =
// base * 2^min(attempt,5) against the last-nudge timestamp, emitting one
// idempotent stall alert once attempts reach maxRetries (spec §4.E).
func ExponentialBackoff(st *state.Store, base time.Duration, maxRetries int) domain.Guard {
	return domain.Guard{
		Name: "exponential_backoff",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			attempts := st.ReadInt("nudge-attempts-"+key, 0)
			if maxRetries > 0 && attempts >= maxRetries {
				alertFlag := "alert-stalled-" + key
				if !st.Exists(alertFlag) {
					_ = st.Touch(alertFlag)
				}
				return domain.Skip("max nudge retries reached")
			}
			shift := attempts
			if shift > 5 {
				shift = 5
			}
			effective := base * time.Duration(1<<uint(shift))
			if st.FreshWithin("nudge-sent-"+key, effective) {
				return domain.Skip(fmt.Sprintf("backoff active (attempt %d, wait %s)", attempts, effective))
			}
			return domain.Pass()
		},
	}
}

// FixedCooldown returns a guard that SKIPs while the named per-project
// cooldown key is fresh.
func FixedCooldown(st *state.Store, name string, seconds int) domain.Guard {
	return domain.Guard{
		Name: "fixed_cooldown:" + name,
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			cooldownKey := name + "-" + key
			window := time.Duration(seconds) * time.Second
			if st.FreshWithin(cooldownKey, window) {
				return domain.Skip(name + " cooldown active")
			}
			return domain.Pass()
		},
	}
}

// WorkingInertia returns a guard that SKIPs if the project was observed
// working within the last window (spec §4.E).
func WorkingInertia(st *state.Store, window time.Duration) domain.Guard {
	return domain.Guard{
		Name: "working_inertia",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			if st.FreshWithin("last-working-"+key, window) {
				return domain.Skip("recently working")
			}
			return domain.Pass()
		},
	}
}

// IdleConfirmations returns a guard requiring n consecutive idle probes
// before passing; the counter resets whenever WorkingInertia would have
// failed (tracked by the caller clearing "idle-probe-<key>" on a working
// observation -- see supervisor step 5), per spec §4.E.
func IdleConfirmations(st *state.Store, n int) domain.Guard {
	return domain.Guard{
		Name: "idle_confirmations",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			counterKey := "idle-probe-" + key
			count := st.ReadInt(counterKey, 0) + 1
			if count >= n {
				_ = st.WriteInt(counterKey, 0)
				return domain.Pass()
			}
			_ = st.WriteInt(counterKey, count)
			return domain.Skip(fmt.Sprintf("idle confirmation %d/%d", count, n))
		},
	}
}

// LowContextThreshold returns a guard passing only when observed context is
// at or below pct.
func LowContextThreshold(pct int) domain.Guard {
	return domain.Guard{
		Name: "low_context_threshold",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			if rec.ContextPct >= 1 && rec.ContextPct <= pct {
				return domain.Pass()
			}
			return domain.Skip("context above threshold")
		},
	}
}

// WeeklyLimitLow returns a guard that SKIPs normal nudges when the
// classifier reports weekly quota at or below pct (spec §4.E).
func WeeklyLimitLow(pct int) domain.Guard {
	return domain.Guard{
		Name: "weekly_limit_low",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			if rec.WeeklyLimitPct != domain.UnknownContext && rec.WeeklyLimitPct <= pct {
				return domain.Skip("weekly quota low")
			}
			return domain.Pass()
		},
	}
}

// LowContextCritical is a supplemented guard (Open Question 1, SPEC_FULL
// §5): PASS always. It is not part of DefaultRules, and no action reads it,
// so it changes neither which action fires nor any alert content.
func LowContextCritical(pct int) domain.Guard {
	return domain.Guard{
		Name: "low_context_critical",
		Eval: func(key string, rec domain.ClassifierRecord, snap domain.WindowSnapshot) domain.GuardVerdict {
			return domain.Pass()
		},
	}
}
