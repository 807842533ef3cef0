package review

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/watchloop/autopilot/internal/formatter"
)

// historyEntry is the JSONL record appended for every completed trigger
// (spec §4.F step 7: "append the result to a history directory whose
// filenames include an HH-MM-SS suffix").
type historyEntry struct {
	Window    string `json:"window"`
	Clean     bool   `json:"clean"`
	Summary   string `json:"summary,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// appendHistory writes one record to <dir>/<window>-<date>-<HH-MM-SS>.jsonl.
// The time-of-day suffix is what prevents two reviews completing on the same
// calendar day from overwriting each other, per spec §4.F step 7.
func appendHistory(dir, windowKey string, outcome Outcome, at time.Time) error {
	name := fmt.Sprintf("%s-%s-%s.jsonl", windowKey, at.Format("2006-01-02"), at.Format("15-04-05"))
	path := filepath.Join(dir, name)
	entry := historyEntry{
		Window:    outcome.Window,
		Clean:     outcome.Clean,
		Summary:   outcome.Summary,
		Timestamp: at.Unix(),
	}
	return formatter.AppendJSONL(path, entry)
}
