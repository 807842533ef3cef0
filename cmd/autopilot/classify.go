package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/tmux"
)

// exit codes per spec §6.5: 0=working, 1=idle family (incl. permission),
// 2=shell, 3=absent.
const (
	exitWorking = 0
	exitIdle    = 1
	exitShell   = 2
	exitAbsent  = 3
)

var classifyCmd = &cobra.Command{
	Use:   "classify <window>",
	Short: "Classify a single window's state and exit",
	Long: `classify captures one window's pane text, resolves its Status per spec
§4.C, prints a single-line JSON body, and exits with a status-coded exit
value so this command is scriptable from shell tooling.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	window := args[0]

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mux := tmux.New(cfg.Commands.Tmux)
	opts := classifier.Options{
		LowContextThreshold: cfg.Thresholds.LowContextPct,
		CaptureLines:        25,
	}

	rec, err := classifier.Classify(mux, cfg.SessionName, window, opts)
	if err != nil {
		return fmt.Errorf("classify %s: %w", window, err)
	}

	body := map[string]any{
		"window":              window,
		"status":              rec.Status,
		"context_pct":         rec.ContextPct,
		"weekly_limit_pct":    rec.WeeklyLimitPct,
		"manual_block_reason": rec.ManualBlockReason,
		"last_activity":       rec.LastActivity,
		"assistant_pid":       rec.AssistantPID,
	}
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(body); err != nil {
		return err
	}

	switch rec.Status {
	case domain.StatusWorking:
		os.Exit(exitWorking)
	case domain.StatusShell:
		os.Exit(exitShell)
	case domain.StatusAbsent:
		os.Exit(exitAbsent)
	default:
		os.Exit(exitIdle)
	}
	return nil
}
