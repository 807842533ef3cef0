package classifier

import (
	"testing"

	"github.com/watchloop/autopilot/internal/domain"
)

type fakeMux struct {
	hasWindow bool
	panePID   int
	pane      string
}

func (f fakeMux) SessionHasWindow(session, window string) (bool, error) {
	return f.hasWindow, nil
}

func (f fakeMux) PanePID(session, window string) (int, error) {
	return f.panePID, nil
}

func (f fakeMux) CapturePane(session, window string, lines int) (string, error) {
	return f.pane, nil
}

func TestClassify_Absent(t *testing.T) {
	mux := fakeMux{hasWindow: false}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusAbsent {
		t.Fatalf("want absent, got %s", rec.Status)
	}
}

func TestClassify_Shell_NoAssistantNoTUIMarkers(t *testing.T) {
	mux := fakeMux{hasWindow: true, panePID: 0, pane: "$ ls\nfoo.go\n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusShell {
		t.Fatalf("want shell, got %s", rec.Status)
	}
}

func TestClassify_Working_EscToInterrupt(t *testing.T) {
	mux := fakeMux{hasWindow: true, panePID: 0, pane: "Doing stuff\nesc to interrupt\n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusWorking {
		t.Fatalf("want working, got %s", rec.Status)
	}
}

func TestClassify_Working_BulletVerbSuffix(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "Running tests\n> \n", panePID: 0}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusWorking {
		t.Fatalf("want working, got %s", rec.Status)
	}
}

func TestClassify_Working_IrregularVerb(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "Wrote the fix\n> \n", panePID: 0}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusWorking {
		t.Fatalf("want working, got %s", rec.Status)
	}
}

func TestClassify_Working_ActivityPhrase(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "Compacting context\n> \n", panePID: 0}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusWorking {
		t.Fatalf("want working, got %s", rec.Status)
	}
}

func TestClassify_Permission(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "Run rm -rf /tmp/x?\nYes, proceed\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusPermission {
		t.Fatalf("want permission, got %s", rec.Status)
	}
}

func TestClassify_PermissionWithRemember(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "Allow once\ndon't ask again\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusPermissionWithRemember {
		t.Fatalf("want permission_with_remember, got %s", rec.Status)
	}
}

func TestClassify_IdleLowContext(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "10% context left\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusIdleLowContext {
		t.Fatalf("want idle_low_context, got %s", rec.Status)
	}
	if rec.ContextPct != 10 {
		t.Fatalf("want context 10, got %d", rec.ContextPct)
	}
}

func TestClassify_Idle(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "80% context left\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.Status != domain.StatusIdle {
		t.Fatalf("want idle, got %s", rec.Status)
	}
}

func TestClassify_ContextPctTakesLastOccurrence(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "50% context left\n...\n12% context left\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.ContextPct != 12 {
		t.Fatalf("want last occurrence 12, got %d", rec.ContextPct)
	}
}

func TestClassify_WeeklyLimitExtracted(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "weekly limit: 5% remaining\n80% context left\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.WeeklyLimitPct != 5 {
		t.Fatalf("want weekly limit 5, got %d", rec.WeeklyLimitPct)
	}
}

func TestClassify_ManualBlockReason(t *testing.T) {
	mux := fakeMux{hasWindow: true, pane: "BLOCKED: needs certificate\n80% context left\n> \n"}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if rec.ManualBlockReason == "" {
		t.Fatal("want a manual block reason to be extracted")
	}
}

func TestClassify_EmptyPaneIsShellOrIdle(t *testing.T) {
	// An empty pane carries no TUI markers, so the result depends only on
	// whether the process-tree walk from the pane PID finds an assistant.
	mux := fakeMux{hasWindow: true, panePID: 1, pane: ""}
	rec, err := Classify(mux, "main", "proj", DefaultOptions())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	// With panePID=1 and no real /proc entries reachable in test sandboxes
	// for arbitrary PIDs, procwalk may or may not find a match depending on
	// environment; assert only that an empty pane with no assistant match
	// and no TUI markers classifies as idle or shell, never a spurious
	// working/permission state.
	if rec.Status != domain.StatusShell && rec.Status != domain.StatusIdle {
		t.Fatalf("unexpected status for empty pane: %s", rec.Status)
	}
}
