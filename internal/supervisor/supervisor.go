// Package supervisor implements the main tick loop (component G, spec
// §4.G): once per project per tick it classifies the window, runs commit
// detection and the review pipeline's emitter half, evaluates the rule
// engine, and dispatches at most one recovery action. Wiring style is
// grounded on the teacher's rpi_loop_supervisor.go main-loop shape:
// a long-lived struct built once at startup, a single blocking Run, and a
// signal-driven graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/gitutil"
	"github.com/watchloop/autopilot/internal/injector"
	"github.com/watchloop/autopilot/internal/lock"
	"github.com/watchloop/autopilot/internal/logging"
	"github.com/watchloop/autopilot/internal/notify"
	"github.com/watchloop/autopilot/internal/review"
	"github.com/watchloop/autopilot/internal/rules"
	"github.com/watchloop/autopilot/internal/state"
)

// Multiplexer is the tmux surface the supervisor's classify/ack-check calls
// need; *tmux.Client satisfies it in production, tests supply a fake.
type Multiplexer interface {
	SessionHasWindow(session, window string) (bool, error)
	PanePID(session, window string) (int, error)
	CapturePane(session, window string, lines int) (string, error)
}

// Config bundles every tunable the tick loop and its collaborators need,
// distinct from internal/config.Config only in that it is fully resolved
// (durations rather than seconds-as-int, etc.).
type Config struct {
	SessionName      string
	RuntimeCommand   string
	TickInterval     time.Duration
	AckTimeout       time.Duration
	AckConcurrency   int64
	StallWarn        time.Duration
	StallAlert       time.Duration
	LogRotateEvery   time.Duration
	LogMaxLines      int
	GCMaxAge         time.Duration
	LockStaleSeconds int

	Classifier classifier.Options
	Guards     rules.GuardConfig
	Review     rules.ReviewTriggerThresholds
	Layer1     review.Layer1Config
}

// DefaultConfig returns the documented defaults for every tunable this
// package owns (spec §4.G / §7).
func DefaultConfig() Config {
	return Config{
		SessionName:      "autopilot",
		RuntimeCommand:   "claude",
		TickInterval:     10 * time.Second,
		AckTimeout:       60 * time.Second,
		AckConcurrency:   8,
		StallWarn:        15 * time.Minute,
		StallAlert:       30 * time.Minute,
		LogRotateEvery:   50 * time.Minute,
		LogMaxLines:      20000,
		GCMaxAge:         24 * time.Hour,
		LockStaleSeconds: 120,
		Classifier:       classifier.DefaultOptions(),
	}
}

// projectRuntime holds the per-project collaborators that can't be shared
// (each needs its own git client rooted at the project directory, its own
// rule set bound to its own since-review closures).
type projectRuntime struct {
	project domain.Project
	git     *gitutil.Client
	emitter *review.Emitter
	ruleset []domain.Rule
}

// Supervisor runs the main tick loop across a fixed fleet of projects.
type Supervisor struct {
	cfg     Config
	log     zerolog.Logger
	state   *state.Store
	mux     Multiplexer
	inject  *injector.Injector
	consume *review.Consumer
	notify  notify.Transport
	lockDir string

	projects []*projectRuntime

	mu          sync.Mutex
	lastRecord  map[string]domain.ClassifierRecord
	stallSince  map[string]time.Time
	stallWarned map[string]bool

	ackSem *semaphore.Weighted
	ackWG  sync.WaitGroup
}

// Deps bundles the already-constructed shared collaborators a caller (the
// run CLI subcommand) assembles from resolved config before calling New.
type Deps struct {
	Log     zerolog.Logger
	State   *state.Store
	Mux     Multiplexer
	Inject  *injector.Injector
	Consume *review.Consumer
	Notify  notify.Transport
	LockDir string
}

// New builds a Supervisor for the given projects. buildEmitter constructs
// the per-project Emitter (its Git/Queue/PRD collaborators differ per
// project directory); the caller supplies it so this package stays free of
// direct queue/prdverify wiring decisions.
func New(cfg Config, projects []domain.Project, deps Deps, buildEmitter func(domain.Project) (*gitutil.Client, *review.Emitter)) *Supervisor {
	sup := &Supervisor{
		cfg:         cfg,
		log:         deps.Log,
		state:       deps.State,
		mux:         deps.Mux,
		inject:      deps.Inject,
		consume:     deps.Consume,
		notify:      deps.Notify,
		lockDir:     deps.LockDir,
		lastRecord:  make(map[string]domain.ClassifierRecord),
		stallSince:  make(map[string]time.Time),
		stallWarned: make(map[string]bool),
		ackSem:      semaphore.NewWeighted(cfg.AckConcurrency),
	}

	for _, p := range projects {
		git, emitter := buildEmitter(p)
		key := p.Key
		pr := &projectRuntime{project: p, git: git, emitter: emitter}
		pr.ruleset = rules.DefaultRules(
			sup.state,
			cfg.Guards,
			cfg.Review,
			func() int { return emitter.SinceReviewCommits(key) },
			func() int { return emitter.SecondsSinceReview(key) },
		)
		sup.projects = append(sup.projects, pr)
	}
	return sup
}

// Run acquires the global supervisor lock and blocks ticking every project
// until ctx is cancelled (spec §4.G: signal handlers belong to the caller,
// which derives ctx from os/signal.NotifyContext).
func (s *Supervisor) Run(ctx context.Context) error {
	gl, err := lock.AcquireGlobal(s.lockDir + "/supervisor.lock.d")
	if err != nil {
		if err == lock.ErrNotAcquired {
			return fmt.Errorf("supervisor: another instance already holds the global lock")
		}
		return err
	}
	defer func() {
		s.waitForAckChecks(2 * time.Second)
		_ = gl.Release()
	}()

	s.log.Info().Int("projects", len(s.projects)).Dur("tick_interval", s.cfg.TickInterval).Msg("supervisor starting")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	rotateTicker := time.NewTicker(s.cfg.LogRotateEvery)
	defer rotateTicker.Stop()

	for {
		s.tickAll(ctx)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("supervisor stopping")
			return nil
		case <-rotateTicker.C:
			s.maintenance()
		case <-ticker.C:
		}
	}
}

// tickAll runs one tick of every project in turn. Projects are processed
// sequentially, not concurrently: each tick's work is small (one tmux
// capture, a handful of state reads/writes, at most one injection), and
// sequential ticking keeps per-project lock contention and log ordering
// simple (spec §4.G does not call for per-project concurrency within a
// single tick -- only the post-action ack check runs in the background).
func (s *Supervisor) tickAll(ctx context.Context) {
	for _, pr := range s.projects {
		s.tickOne(ctx, pr)
	}

	if idle := s.consumeReviews(ctx); idle > 0 {
		s.log.Debug().Int("consumed", idle).Msg("review triggers consumed")
	}
}

func (s *Supervisor) tickOne(ctx context.Context, pr *projectRuntime) {
	project := pr.project
	key := project.Key

	rec, err := classifier.Classify(s.mux, s.cfg.SessionName, project.Window, s.cfg.Classifier)
	if err != nil {
		s.log.Warn().Str("window", project.Window).Err(err).Msg("classify failed")
		return
	}

	s.recordTransition(key, project.Window, rec)

	snap := s.loadSnapshot(key)

	det, err := pr.emitter.DetectCommits(ctx, project)
	if err != nil {
		s.log.Warn().Str("window", project.Window).Err(err).Msg("commit detection failed")
	}
	if det.Changed {
		s.clearStallTracking(key)
		s.log.Info().Str("window", project.Window).
			Str("head", det.NewHead).Int("new_commits", det.NewCommits).
			Int("since_review", det.SinceReview).Msg("commit observed")
	}

	s.trackTodoChanges(pr)

	if rec.Status != domain.StatusWorking {
		s.clearStallTracking(key)
	}

	outcome := rules.Evaluate(key, rec, snap, pr.ruleset, func(rule string, trace []string, out string) {
		logging.Decision(s.log, project.Window, rule, trace, out)
	})

	if outcome.ActionExecuted {
		s.dispatch(ctx, pr, rec, outcome)
	}

	if rec.Status == domain.StatusWorking {
		s.trackWorkingActivity(key, project.Window, rec)
	}
}

// recordTransition logs a state-transition line whenever the classified
// status differs from the last observed one, and keeps the in-memory last-
// record map the review consumer's IsIdle closure reads.
func (s *Supervisor) recordTransition(key, window string, rec domain.ClassifierRecord) {
	s.mu.Lock()
	prev, had := s.lastRecord[key]
	s.lastRecord[key] = rec
	s.mu.Unlock()

	if had && prev.Status != rec.Status {
		logging.Transition(s.log, window, string(prev.Status), string(rec.Status))
	}
}

// loadSnapshot reconstructs the WindowSnapshot the rule engine needs from
// persisted state; most fields are maintained by trackWorkingActivity and
// the emitter rather than recomputed here.
func (s *Supervisor) loadSnapshot(key string) domain.WindowSnapshot {
	head, _ := s.state.ReadScalar("watchdog-commits/" + key + "-head")
	return domain.WindowSnapshot{
		Head:       head,
		Commits30m: 0,
	}
}

// trackTodoChanges compares the project's task-queue pending count against
// the last observed count, resetting nudge backoff and emitting one alert
// when new items appear (spec §4.G step 4). A project with no queue wired
// (Emitter.Queue == nil) has nothing to compare and is skipped.
func (s *Supervisor) trackTodoChanges(pr *projectRuntime) {
	q := pr.emitter.Queue
	if q == nil {
		return
	}
	key := pr.project.Key

	total, err := q.Count("")
	if err != nil {
		return
	}
	done, err := q.Count("[x]")
	if err != nil {
		return
	}
	remaining := total - done
	_ = s.state.WriteInt("prd-remaining-"+key, remaining)

	lastKey := "queue-pending-" + key
	last := s.state.ReadInt(lastKey, remaining)
	_ = s.state.WriteInt(lastKey, remaining)

	if remaining > last {
		_ = s.state.WriteInt("nudge-attempts-"+key, 0)
		_ = s.state.Remove("alert-stalled-" + key)
		if s.notify != nil {
			s.notify.Notify(fmt.Sprintf("%s: %d new task(s) queued", pr.project.Window, remaining-last))
		}
	}
}

func (s *Supervisor) clearStallTracking(key string) {
	s.mu.Lock()
	delete(s.stallSince, key)
	delete(s.stallWarned, key)
	s.mu.Unlock()
}

// trackWorkingActivity implements spec §4.G step 7: update the activity
// timestamp, and escalate a log warning then a one-shot alert if a project
// stays in "working" with no HEAD movement for too long.
func (s *Supervisor) trackWorkingActivity(key, window string, rec domain.ClassifierRecord) {
	_ = s.state.Touch("last-working-" + key)
	_ = s.state.Remove("idle-probe-" + key)

	s.mu.Lock()
	since, tracked := s.stallSince[key]
	if !tracked {
		s.stallSince[key] = time.Now()
		s.stallWarned[key] = false
		s.mu.Unlock()
		return
	}
	warned := s.stallWarned[key]
	s.mu.Unlock()

	elapsed := time.Since(since)
	if elapsed >= s.cfg.StallAlert {
		// One alert per stall period: the flag holds the period's start, and
		// a new period (tracking cleared and restarted) has a new start.
		alertFlag := "alert-working-stall-" + key
		stamp := fmt.Sprint(since.UnixNano())
		if prev, _ := s.state.ReadScalar(alertFlag); prev == stamp {
			return
		}
		_ = s.state.WriteScalarAtomic(alertFlag, stamp)
		if s.notify != nil {
			s.notify.Notify(fmt.Sprintf("%s: no progress for %s while working", window, elapsed.Round(time.Second)))
		}
		s.log.Warn().Str("window", window).Dur("elapsed", elapsed).Msg("working stall alert")
		return
	}
	if elapsed >= s.cfg.StallWarn && !warned {
		s.mu.Lock()
		s.stallWarned[key] = true
		s.mu.Unlock()
		s.log.Warn().Str("window", window).Dur("elapsed", elapsed).Msg("working stall warning")
	}
}

// dispatch executes the single action the rule engine selected, then kicks
// off a bounded-concurrency ack check (spec §4.G step 6 + ack check).
func (s *Supervisor) dispatch(ctx context.Context, pr *projectRuntime, rec domain.ClassifierRecord, outcome rules.Outcome) {
	project := pr.project
	key := project.Key

	var err error
	switch outcome.Action {
	case domain.ActionApprovePermission:
		// Spec's documented keystroke for both permission and
		// permission_with_remember: "p" followed by submit.
		err = s.inject.Inject(ctx, s.cfg.SessionName, project.Window, "p")

	case domain.ActionSendNudge:
		text, renderErr := s.renderNudgeText(project, outcome)
		if renderErr != nil {
			s.log.Error().Str("window", project.Window).Err(renderErr).Msg("nudge template render failed")
			return
		}
		err = s.inject.Inject(ctx, s.cfg.SessionName, project.Window, text)
		if err == nil {
			attempts := s.state.ReadInt("nudge-attempts-"+key, 0) + 1
			_ = s.state.WriteInt("nudge-attempts-"+key, attempts)
			_ = s.state.Touch("nudge-sent-" + key)
		}

	case domain.ActionSendCompact:
		s.snapshotPreCompact(pr)
		err = s.inject.Inject(ctx, s.cfg.SessionName, project.Window, "/compact")
		if err == nil {
			_ = s.state.WriteInt("compact-sent-ts-"+key, int(time.Now().Unix()))
			if pr.git != nil {
				subjects, gerr := pr.git.RecentCommitSubjects(1)
				subject := ""
				if gerr == nil && len(subjects) > 0 {
					subject = subjects[0]
				}
				if audit, aerr := rules.RenderCompactAudit(domain.NudgeContext{LastCommitSubject: subject}); aerr == nil {
					s.log.Info().Str("window", project.Window).Str("audit", audit).Msg("compact triggered")
				}
			}
		}

	case domain.ActionResumeShell:
		cmd := composeResumeCommand(project, s.cfg.RuntimeCommand)
		err = s.inject.Inject(ctx, s.cfg.SessionName, project.Window, cmd)

	case domain.ActionWriteReviewTrigger:
		err = pr.emitter.WriteTrigger(project)
	}

	if err != nil {
		s.log.Warn().Str("window", project.Window).Str("action", string(outcome.Action)).Err(err).Msg("action dispatch failed")
		return
	}

	s.log.Info().Str("window", project.Window).Str("action", string(outcome.Action)).Str("rule", outcome.Rule).Msg("action dispatched")

	if outcome.Action == domain.ActionWriteReviewTrigger {
		return
	}
	s.scheduleAckCheck(project, outcome.Action, rec)
}

// composeResumeCommand builds the shell line the resume-shell action injects:
// cd into the project directory and relaunch the assistant runtime (spec
// §4.E's resume-shell row).
func composeResumeCommand(project domain.Project, runtime string) string {
	if runtime == "" {
		runtime = "claude"
	}
	return fmt.Sprintf("cd %s && %s", shellQuote(project.Dir), runtime)
}

// shellQuote wraps a path in single quotes, escaping any embedded single
// quote the POSIX-shell way.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// snapshotPreCompact records the pre-compact context a post-compact nudge
// can reference (spec §4.E send-compact row): uncommitted files, recent
// commit subjects, the in-progress queue item, and the last nudge sent.
func (s *Supervisor) snapshotPreCompact(pr *projectRuntime) {
	key := pr.project.Key
	var b strings.Builder

	if pr.git != nil {
		if files, err := pr.git.UncommittedFiles(); err == nil && len(files) > 0 {
			fmt.Fprintf(&b, "uncommitted: %s\n", strings.Join(files, ", "))
		}
		if subjects, err := pr.git.RecentCommitSubjects(3); err == nil && len(subjects) > 0 {
			fmt.Fprintf(&b, "recent commits: %s\n", strings.Join(subjects, "; "))
		}
	}
	if pr.emitter.Queue != nil {
		if text, ok, err := pr.emitter.Queue.Next(); err == nil && ok {
			fmt.Fprintf(&b, "in progress: %s\n", text.Text)
		}
	}

	_ = s.state.WriteScalarAtomic("was-low-context-"+key, b.String())
	_ = s.state.Touch("post-compact-" + key)
}

func (s *Supervisor) renderNudgeText(project domain.Project, outcome rules.Outcome) (string, error) {
	key := project.Key
	pending := s.state.ReadInt("prd-remaining-"+key, 0)
	issues, _ := s.state.ReadScalar("autocheck-issues-" + key)
	ctx := domain.NudgeContext{
		PRDRemaining:  pending,
		PendingIssues: issues,
	}
	tmplText := ""
	if outcome.TemplateName == "" || outcome.TemplateName == "default" {
		tmplText = project.DefaultNudge
	}
	return rules.RenderNudge(tmplText, ctx)
}

// consumeReviews runs one pass of the review-trigger consumer across every
// project, using the last classifier record as the idle oracle.
func (s *Supervisor) consumeReviews(ctx context.Context) int {
	if s.consume == nil {
		return 0
	}
	projects := make([]domain.Project, 0, len(s.projects))
	for _, pr := range s.projects {
		projects = append(projects, pr.project)
	}
	outcomes, err := s.consume.ConsumeAll(ctx, projects, s.isIdle)
	if err != nil {
		s.log.Warn().Err(err).Msg("review consume pass failed")
		return 0
	}
	return len(outcomes)
}

func (s *Supervisor) isIdle(window string) bool {
	key := domain.SanitizeWindowName(window)
	s.mu.Lock()
	rec, ok := s.lastRecord[key]
	s.mu.Unlock()
	return ok && review.IsIdleForReview(rec.Status)
}

// maintenance runs the ~50min housekeeping pass: log truncation is owned by
// the caller's log writer (rotated file handle), so this only GCs stale
// cooldown/activity state files (spec §4.G: "GC cooldown/activity files
// older than 24h").
func (s *Supervisor) maintenance() {
	removed, err := s.state.GCOlderThan(".", s.cfg.GCMaxAge)
	if err != nil {
		s.log.Warn().Err(err).Msg("state GC failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("state GC complete")
	}
}
