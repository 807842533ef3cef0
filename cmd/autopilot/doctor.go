package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/internal/config"
	"github.com/watchloop/autopilot/internal/lock"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run startup preflight checks",
	Long: `doctor verifies the environment autopilot needs before run can be trusted:
the tmux/git binaries resolve on PATH, the configured session exists, the
base directory is writable, and no stale (but not dead) global lock is
blocking startup.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type check struct {
	name string
	err  error
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var checks []check

	checks = append(checks, check{"tmux binary on PATH", binaryExists(cfg.Commands.Tmux)})
	checks = append(checks, check{"git binary on PATH", binaryExists(cfg.Commands.Git)})
	if cfg.Commands.PRDVerify != "" {
		checks = append(checks, check{"prd_verify binary on PATH", binaryExists(cfg.Commands.PRDVerify)})
	}

	checks = append(checks, check{"base directory writable", checkWritable(cfg.BaseDir)})

	checks = append(checks, check{"tmux session reachable", checkSession(cfg.Commands.Tmux, cfg.SessionName)})

	checks = append(checks, check{"global supervisor lock free", checkGlobalLock(filepath.Join(cfg.BaseDir, "locks", "supervisor.lock.d"))})

	failed := false
	for _, c := range checks {
		status := "ok"
		if c.err != nil {
			status = "FAIL: " + c.err.Error()
			failed = true
		}
		fmt.Printf("%-32s %s\n", c.name, status)
	}
	if failed {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	return nil
}

func binaryExists(name string) error {
	if name == "" {
		return fmt.Errorf("not configured")
	}
	_, err := exec.LookPath(name)
	return err
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor-write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}

func checkSession(tmuxCmd, session string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, tmuxCmd, "has-session", "-t", session).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s (tmux says: %s)", err, string(out))
	}
	return nil
}

// checkGlobalLock reports whether the global lock is currently held by a
// live process, by attempting and immediately releasing an acquisition --
// AcquireGlobal itself performs the PID/start-signature liveness check.
func checkGlobalLock(path string) error {
	gl, err := lock.AcquireGlobal(path)
	if err == lock.ErrNotAcquired {
		return fmt.Errorf("held by a running supervisor")
	}
	if err != nil {
		return err
	}
	return gl.Release()
}
