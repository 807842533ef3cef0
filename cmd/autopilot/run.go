package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/gitutil"
	"github.com/watchloop/autopilot/internal/injector"
	"github.com/watchloop/autopilot/internal/logging"
	"github.com/watchloop/autopilot/internal/notify"
	"github.com/watchloop/autopilot/internal/prdverify"
	"github.com/watchloop/autopilot/internal/queue"
	"github.com/watchloop/autopilot/internal/review"
	"github.com/watchloop/autopilot/internal/rules"
	"github.com/watchloop/autopilot/internal/state"
	"github.com/watchloop/autopilot/internal/supervisor"
	"github.com/watchloop/autopilot/internal/tmux"
)

var projectsFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the supervisor loop",
	Long: `run starts the main supervisor loop: it ticks every configured project,
classifying its tmux window and dispatching at most one guarded recovery
action per tick, until interrupted.`,
	RunE: runSupervisor,
}

func init() {
	runCmd.Flags().StringVar(&projectsFile, "projects", "", "Projects YAML or line-delimited fallback file")
	rootCmd.AddCommand(runCmd)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logPath := filepath.Join(cfg.BaseDir, "logs", "watchdog.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logging.New(logFile, cfg.Verbose || GetVerbose())

	stateDir := filepath.Join(cfg.BaseDir, "state")
	st, err := state.New(stateDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	lockDir := filepath.Join(cfg.BaseDir, "locks")
	historyDir := filepath.Join(cfg.BaseDir, "history")

	projects, source, err := config.LoadProjects(projectsFile, filepath.Join(cfg.BaseDir, "projects.conf"))
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	log.Info().Int("projects", len(projects)).Str("source", string(source)).Msg("projects resolved")
	if len(projects) == 0 {
		return fmt.Errorf("no projects configured")
	}

	mux := tmux.New(cfg.Commands.Tmux)
	inject := injector.New(mux, st, lockDir, injectionBufferWriter, nil)

	var transport notify.Transport = notify.NoopTransport{}
	if cfg.Notify.Enabled {
		if creds, err := notify.LoadCredentials(cfg.Notify.CredentialsPath); err == nil && creds != nil {
			transport = notify.NewBotTransport(*creds, log)
		} else if err != nil {
			log.Warn().Err(err).Msg("notify credentials load failed; notifications disabled")
		}
	}

	consumer := &review.Consumer{
		State:            st,
		NewGit:           func(dir string) *gitutil.Client { return gitutil.New(cfg.Commands.Git, dir) },
		Inject:           inject,
		SessionName:      cfg.SessionName,
		LockDir:          lockDir,
		HistoryDir:       historyDir,
		StaleSeconds:     cfg.Thresholds.ReviewStaleSeconds,
		LockStaleSeconds: cfg.Cooldowns.ReviewSeconds,
		InProgressWindow: 5 * time.Minute,
	}

	var prdEngine *prdverify.Engine
	if cfg.Commands.PRDVerify != "" {
		prdEngine = prdverify.New(cfg.Commands.PRDVerify)
	}

	buildEmitter := func(p domain.Project) (*gitutil.Client, *review.Emitter) {
		git := gitutil.New(cfg.Commands.Git, p.Dir)
		q := queue.New(filepath.Join(p.Dir, ".autopilot-queue.txt"))
		emitter := &review.Emitter{
			State:   st,
			Git:     git,
			Queue:   q,
			PRD:     prdEngine,
			LockDir: lockDir,
			Layer1: review.Layer1Config{
				TypeChecker:        cfg.Commands.TypeChecker,
				TypeCheckerTimeout: 60 * time.Second,
				TestRunner:         cfg.Commands.TestRunner,
				TestRunnerTimeout:  120 * time.Second,
			},
			LockStaleSeconds: cfg.Thresholds.Layer1CooldownSeconds,
		}
		return git, emitter
	}

	scfg := supervisor.DefaultConfig()
	scfg.SessionName = cfg.SessionName
	scfg.RuntimeCommand = cfg.Commands.Runtime
	scfg.TickInterval = time.Duration(cfg.TickSeconds) * time.Second
	scfg.Classifier = classifier.Options{
		LowContextThreshold: cfg.Thresholds.LowContextPct,
		CaptureLines:        25,
	}
	scfg.Guards = rules.GuardConfig{
		ManualTaskTTL:          time.Duration(cfg.Thresholds.ManualTaskTTLSeconds) * time.Second,
		NudgeBackoffBase:       time.Duration(cfg.Thresholds.NudgeBackoffBaseSeconds) * time.Second,
		NudgeBackoffMaxRetries: cfg.Thresholds.NudgeBackoffMaxRetries,
		WorkingInertia:         time.Duration(cfg.Thresholds.WorkingInertiaSeconds) * time.Second,
		IdleConfirmations:      cfg.Thresholds.IdleConfirmations,
		LowContextThreshold:    cfg.Thresholds.LowContextPct,
		WeeklyLimitLowPct:      cfg.Thresholds.WeeklyLimitLowPct,
	}
	scfg.Review = rules.ReviewTriggerThresholds{
		CommitThreshold: cfg.Thresholds.ReviewCommitThreshold,
		StaleSeconds:    cfg.Thresholds.ReviewStaleSeconds,
	}
	scfg.StallWarn = time.Duration(cfg.Thresholds.StallWarnSeconds) * time.Second
	scfg.StallAlert = time.Duration(cfg.Thresholds.StallAlertSeconds) * time.Second
	scfg.LockStaleSeconds = cfg.Thresholds.Layer1CooldownSeconds

	deps := supervisor.Deps{
		Log:     log,
		State:   st,
		Mux:     mux,
		Inject:  inject,
		Consume: consumer,
		Notify:  transport,
		LockDir: lockDir,
	}

	sup := supervisor.New(scfg, projects, deps, buildEmitter)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return sup.Run(ctx)
}
