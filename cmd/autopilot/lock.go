package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/formatter"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear stale locks",
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every lock directory and its age",
	RunE:  runLockList,
}

var lockClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Remove a named lock directory (use with care: only clear a lock you know is abandoned)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLockClear,
}

func init() {
	lockCmd.AddCommand(lockListCmd)
	lockCmd.AddCommand(lockClearCmd)
	rootCmd.AddCommand(lockCmd)
}

func runLockList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	lockDir := filepath.Join(cfg.BaseDir, "locks")

	entries, err := os.ReadDir(lockDir)
	if os.IsNotExist(err) {
		fmt.Println("no locks held")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock dir: %w", err)
	}

	table := formatter.NewTable(os.Stdout, "NAME", "AGE", "HOLDER_PID")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".lock.d")
		info, err := e.Info()
		if err != nil {
			continue
		}
		age := time.Since(info.ModTime()).Round(time.Second)
		holder := "-"
		if pidRaw, err := os.ReadFile(filepath.Join(lockDir, e.Name(), "pid")); err == nil {
			holder = strings.TrimSpace(string(pidRaw))
		}
		table.AddRow(name, age.String(), holder)
	}
	return table.Render()
}

func runLockClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	name := args[0]
	if !strings.HasSuffix(name, ".lock.d") {
		name += ".lock.d"
	}
	path := filepath.Join(cfg.BaseDir, "locks", name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no such lock: %s", name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("clear lock: %w", err)
	}
	fmt.Printf("cleared %s\n", name)
	return nil
}
