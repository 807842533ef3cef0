package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/classifier"
	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/domain"
	"github.com/watchloop/autopilot/internal/formatter"
	"github.com/watchloop/autopilot/internal/state"
	"github.com/watchloop/autopilot/internal/tmux"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current state of all supervised windows",
	Long:  `status classifies every configured project's window and renders a table.`,
	RunE:  runStatus,
}

var statusProjectsFile string

func init() {
	statusCmd.Flags().StringVar(&statusProjectsFile, "projects", "", "Projects YAML or line-delimited fallback file")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	projects, _, err := config.LoadProjects(statusProjectsFile, filepath.Join(cfg.BaseDir, "projects.conf"))
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	st, err := state.New(filepath.Join(cfg.BaseDir, "state"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	mux := tmux.New(cfg.Commands.Tmux)
	opts := classifier.Options{LowContextThreshold: cfg.Thresholds.LowContextPct, CaptureLines: 25}

	table := formatter.NewTable(os.Stdout, "WINDOW", "STATUS", "CONTEXT", "REMAINING", "DIR")
	for _, p := range projects {
		rec, err := classifier.Classify(mux, cfg.SessionName, p.Window, opts)
		if err != nil {
			table.AddRow(p.Window, "error: "+err.Error(), "-", "-", p.Dir)
			continue
		}
		ctxPct := "-"
		if rec.ContextPct != domain.UnknownContext {
			ctxPct = strconv.Itoa(rec.ContextPct) + "%"
		}
		remaining := st.ReadInt("prd-remaining-"+p.Key, -1)
		remainingStr := "-"
		if remaining >= 0 {
			remainingStr = strconv.Itoa(remaining)
		}
		table.AddRow(p.Window, string(rec.Status), ctxPct, remainingStr, p.Dir)
	}
	return table.Render()
}
