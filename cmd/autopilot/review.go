package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/gitutil"
	"github.com/watchloop/autopilot/internal/injector"
	"github.com/watchloop/autopilot/internal/logging"
	"github.com/watchloop/autopilot/internal/review"
	"github.com/watchloop/autopilot/internal/state"
	"github.com/watchloop/autopilot/internal/tmux"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect or consume review triggers",
}

var reviewConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run one consumer pass over every project's pending review trigger",
	Long: `consume implements the two-phase-commit consumer half of the review
pipeline (spec §4.F): for every project with a pending review-trigger flag,
it either waits for the window to go idle, force-checks for reviewer
output, or advances the trigger's state machine.`,
	RunE: runReviewConsume,
}

func init() {
	reviewConsumeCmd.Flags().StringVar(&projectsFile, "projects", "", "Projects YAML or line-delimited fallback file")
	reviewCmd.AddCommand(reviewConsumeCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewConsume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.NewConsole(cfg.Verbose || GetVerbose())

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

	mux := tmux.New(cfg.Commands.Tmux)
	inject := injector.New(mux, st, lockDir, injectionBufferWriter, nil)

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

	opts := classifier.Options{LowContextThreshold: cfg.Thresholds.LowContextPct, CaptureLines: 25}
	isIdle := func(window string) bool {
		rec, err := classifier.Classify(mux, cfg.SessionName, window, opts)
		if err != nil {
			return false
		}
		return review.IsIdleForReview(rec.Status)
	}

	outcomes, err := consumer.ConsumeAll(context.Background(), projects, isIdle)
	if err != nil {
		return fmt.Errorf("consume review triggers: %w", err)
	}

	for _, o := range outcomes {
		log.Info().Str("window", o.Window).Str("state", string(o.State)).
			Bool("advanced", o.Advanced).Bool("clean", o.Clean).Str("summary", o.Summary).
			Msg("review trigger processed")
	}
	if len(outcomes) == 0 {
		fmt.Println("no pending review triggers")
	}
	return nil
}
