// Package classifier resolves a tmux window's current autopilot Status from
// a capture of its pane plus a process-tree check, per spec §4.C. The
// classifier is pure with respect to its observed inputs -- it never reads
// or writes the state store and never shells out beyond the Multiplexer
// collaborator interface it's given.
package classifier

import (
	"regexp"
	"strings"

	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/procwalk"
)

// Multiplexer is the subset of tmux operations the classifier needs. The
// real implementation lives in internal/tmux; tests supply a fake.
type Multiplexer interface {
	SessionHasWindow(session, window string) (bool, error)
	PanePID(session, window string) (int, error)
	CapturePane(session, window string, lines int) (string, error)
}

// Options tunes the few spec-exposed classification thresholds.
type Options struct {
	LowContextThreshold int            // default 25
	ManualBlockPattern  *regexp.Regexp // nil uses the built-in default
	CaptureLines        int            // default 25
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		LowContextThreshold: 25,
		CaptureLines:        25,
	}
}

// Record is an alias for the shared classifier output type.
type Record = domain.ClassifierRecord

// Classify resolves the Status for a single window.
func Classify(mux Multiplexer, session, window string, opts Options) (Record, error) {
	exists, err := mux.SessionHasWindow(session, window)
	if err != nil {
		return Record{}, err
	}
	if !exists {
		return Record{Status: domain.StatusAbsent, ContextPct: domain.UnknownContext, WeeklyLimitPct: domain.UnknownContext}, nil
	}

	captureLines := opts.CaptureLines
	if captureLines <= 0 {
		captureLines = 25
	}
	text, err := mux.CapturePane(session, window, captureLines)
	if err != nil {
		return Record{}, err
	}

	assistantPID := 0
	hasAssistant := false
	if panePID, err := mux.PanePID(session, window); err == nil && panePID > 0 {
		if pid, found := procwalk.FindAssistant(panePID); found {
			assistantPID = pid
			hasAssistant = true
		}
	}

	if !hasAssistant && !looksLikeAssistantTUI(text) {
		return Record{Status: domain.StatusShell, ContextPct: domain.UnknownContext, WeeklyLimitPct: domain.UnknownContext, PaneText: text}, nil
	}

	contextPct := extractContextPct(text)
	weeklyPct := extractWeeklyLimitPct(text)
	manualBlock := extractManualBlockReason(text, opts)

	status, lastActivity := classifyText(text, contextPct, opts)

	return Record{
		Status:            status,
		ContextPct:        contextPct,
		WeeklyLimitPct:    weeklyPct,
		ManualBlockReason: manualBlock,
		LastActivity:      lastActivity,
		PaneText:          text,
		AssistantPID:      assistantPID,
	}, nil
}

// extractManualBlockReason returns the matched manual-intervention marker,
// or "" if none is present. opts.ManualBlockPattern overrides the built-in
// default when set.
func extractManualBlockReason(text string, opts Options) string {
	pat := defaultManualBlockPattern
	if opts.ManualBlockPattern != nil {
		pat = opts.ManualBlockPattern
	}
	return pat.FindString(text)
}

// looksLikeAssistantTUI is the text-only fallback used when the process
// tree yields no match (spec §4.C step 2): presence of any of tmux's
// TUI-characteristic markers is enough to avoid misclassifying a window as
// shell right after a process-tree miss (e.g. briefly during a restart).
func looksLikeAssistantTUI(text string) bool {
	if strings.Contains(text, "context left") {
		return true
	}
	if strings.Contains(text, "esc to interrupt") {
		return true
	}
	return promptGlyphLine.MatchString(text)
}

// extractContextPct returns the last "N% context left" match, or
// domain.UnknownContext if none is present.
func extractContextPct(text string) int {
	matches := contextLeftPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return domain.UnknownContext
	}
	return atoiSafe(matches[len(matches)-1][1])
}

// extractWeeklyLimitPct returns the last weekly-limit/usage/quota
// percentage match, or domain.UnknownContext if none is present.
func extractWeeklyLimitPct(text string) int {
	matches := weeklyLimitPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return domain.UnknownContext
	}
	return atoiSafe(matches[len(matches)-1][1])
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// classifyText applies the spec §4.C step 4 priority order once the pane is
// known to host a live (or plausibly live) assistant. Returns the status and
// a short snippet describing what triggered it.
func classifyText(text string, contextPct int, opts Options) (domain.Status, string) {
	if strings.Contains(text, "esc to interrupt") {
		return domain.StatusWorking, "esc to interrupt"
	}

	lines := strings.Split(text, "\n")
	activity := activityRegion(lines)

	if snippet, ok := bulletVerbSnippet(activity); ok {
		return domain.StatusWorking, snippet
	}
	if snippet, ok := activityPhraseSnippet(activity); ok {
		return domain.StatusWorking, snippet
	}

	if cue := firstMatching(activity, permissionCues); cue != "" {
		if remember := firstMatching(activity, rememberCues); remember != "" {
			return domain.StatusPermissionWithRemember, remember
		}
		return domain.StatusPermission, cue
	}

	threshold := opts.LowContextThreshold
	if threshold <= 0 {
		threshold = 25
	}
	if contextPct >= 1 && contextPct <= threshold {
		return domain.StatusIdleLowContext, ""
	}

	return domain.StatusIdle, ""
}

func firstMatching(lines []string, needles []string) string {
	joined := strings.Join(lines, "\n")
	for _, n := range needles {
		if strings.Contains(joined, n) {
			return n
		}
	}
	return ""
}

// activityRegion drops the bottom status-bar line(s) tmux panes typically
// render, since those never carry work-in-progress signal and would
// otherwise false-positive against the permission cues (which also appear
// in help text at the very bottom).
func activityRegion(lines []string) []string {
	const bottomBarLines = 2
	if len(lines) <= bottomBarLines {
		return lines
	}
	return lines[:len(lines)-bottomBarLines]
}

func activityPhraseSnippet(lines []string) (string, bool) {
	for _, phrase := range activityPhrases {
		if strings.Contains(strings.Join(lines, "\n"), phrase) {
			return phrase, true
		}
	}
	return "", false
}

// bulletVerbSnippet looks for a line whose first word is a verb in
// progress: an irregular verb from the allowlist, a word ending in one of
// the configured suffixes, or a standalone verb followed by a tree-child
// "└" line (spec §4.C step 4). Returns the triggering line, trimmed.
func bulletVerbSnippet(lines []string) (string, bool) {
	for i, line := range lines {
		word := firstWord(line)
		if word == "" {
			continue
		}
		lower := strings.ToLower(word)
		if irregularVerbs[lower] || hasBulletSuffix(lower) {
			return strings.TrimSpace(line), true
		}
		if i+1 < len(lines) && treeChildLinePrefix.MatchString(lines[i+1]) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

func hasBulletSuffix(word string) bool {
	for _, suf := range bulletVerbSuffixes {
		if len(word) > len(suf) && strings.HasSuffix(word, suf) {
			return true
		}
	}
	return false
}

func firstWord(line string) string {
	trimmed := strings.TrimLeft(line, " \t•-*·└")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
