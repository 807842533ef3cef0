package classifier

import "regexp"

// busyMarkers are TUI strings indicating the assistant is actively
// generating output, checked both for classification and for the
// injector's post-send verification (spec §4.C step 4, §4.D).
var busyMarkers = []string{
	"esc to interrupt",
	"Working",
	"Thinking",
}

// contextLeftPattern matches "N% context left"; the last occurrence in the
// captured pane wins, since the line repaints every frame.
var contextLeftPattern = regexp.MustCompile(`(\d{1,3})%\s*context left`)

// weeklyLimitPattern matches a weekly usage/quota percentage remaining.
var weeklyLimitPattern = regexp.MustCompile(`(?i)weekly\s+(?:limit|usage|quota)\D{0,20}?(\d{1,3})%`)

// defaultManualBlockPattern is the built-in fallback for a configurable
// manual-intervention-required regex (certificate/signing/manual/BLOCKED).
var defaultManualBlockPattern = regexp.MustCompile(`(?i)(certificate|signing|manual(?:ly)?|BLOCKED)`)

// permissionCues signal the assistant is waiting on a yes/no confirmation.
var permissionCues = []string{
	"Yes, proceed",
	"Press enter to confirm",
	"Allow once",
	"Esc to cancel",
}

// rememberCues additionally signal the confirmation offers a "don't ask
// again" option, escalating permission -> permission_with_remember.
var rememberCues = []string{
	"don't ask again",
	"Allow always",
}

// activityPhrases are standalone markers of ongoing work that don't fit the
// bullet-verb shape below.
var activityPhrases = []string{
	"Context compacted",
	"Waiting for background",
	"Compacting context",
}

// irregularVerbs is the allowlist of past-tense/gerund-shaped irregular verbs
// that the suffix heuristic below would otherwise miss (spec §4.C step 4:
// "-ing/-ed/-te/-d/-ote, an irregular-verb allowlist").
var irregularVerbs = map[string]bool{
	"ran": true, "read": true, "wrote": true, "built": true,
	"sent": true, "ate": true, "saw": true, "made": true, "took": true,
	"began": true, "bought": true, "caught": true, "chose": true,
	"drew": true, "fell": true, "felt": true, "found": true, "gave": true,
	"went": true, "grew": true, "held": true, "kept": true, "knew": true,
	"left": true, "lost": true, "met": true, "paid": true,
	"sought": true, "sold": true, "spent": true, "spoke": true, "stood": true,
	"stuck": true, "swore": true, "taught": true, "thought": true,
	"threw": true, "understood": true, "woke": true, "wore": true,
	"won": true,
}

// bulletVerbSuffixes are the literal suffixes that mark a line as a
// work-in-progress bullet (e.g. "Running tests...", "Updated the README").
var bulletVerbSuffixes = []string{"ing", "ed", "te", "d", "ote"}

var treeChildLinePrefix = regexp.MustCompile(`^\s*└`)

// promptGlyphLine matches the assistant's input-prompt line, used both as a
// TUI presence marker and to detect whether the prompt changed across a
// pre/post-send snapshot.
var promptGlyphLine = regexp.MustCompile(`(?m)^\s*[>›❯]\s*.*$`)
