package rules

import (
	"github.com/watchloop/autopilot/internal/domain"
)

// Outcome is the result of one tick's rule evaluation.
type Outcome struct {
	ActionExecuted bool
	Rule           string
	Action         domain.ActionKind
	TemplateName   string // copied from the matched rule, for nudge rendering
	GuardTrace     []string // one entry per guard evaluated, "name: verdict"
}

// DecisionFunc is called once per rule evaluated (match or not), letting
// the caller emit the mandatory decision-trace log line (spec §4.E) without
// the engine itself depending on a logger.
type DecisionFunc func(rule string, guardTrace []string, outcome string)

// Evaluate walks rules in declaration order, executing the first whose
// Match predicate and full guard chain both pass. Exactly one action runs
// per call; if no rule matches (or all matching rules are guarded off),
// Outcome.ActionExecuted is false -- rules are total, there is always an
// implicit "do nothing" last resort (spec §4.E).
func Evaluate(projectKey string, rec domain.ClassifierRecord, snap domain.WindowSnapshot, ruleset []domain.Rule, onDecision DecisionFunc) Outcome {
	for _, rule := range ruleset {
		if !rule.Match(rec, snap) {
			continue
		}

		var trace []string
		skipped := false
		var skipReason string
		for _, guard := range rule.Guards {
			verdict := guard.Eval(projectKey, rec, snap)
			if verdict.Pass {
				trace = append(trace, guard.Name+": pass")
				continue
			}
			trace = append(trace, guard.Name+": skip ("+verdict.Reason+")")
			skipped = true
			skipReason = verdict.Reason
			break
		}

		if skipped {
			if onDecision != nil {
				onDecision(rule.Name, trace, "skip: "+skipReason)
			}
			continue
		}

		if onDecision != nil {
			onDecision(rule.Name, trace, "action: "+string(rule.Action))
		}
		return Outcome{
			ActionExecuted: true,
			Rule:           rule.Name,
			Action:         rule.Action,
			TemplateName:   rule.TemplateName,
			GuardTrace:     trace,
		}
	}

	if onDecision != nil {
		onDecision("", nil, "no rule matched")
	}
	return Outcome{}
}
