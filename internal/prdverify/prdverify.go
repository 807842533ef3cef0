// Package prdverify wraps the external PRD verification engine collaborator
// (spec §6.4): invoked with {project_dir, changed_files, output_path}, it
// returns rc=0 (pass) or a non-zero code with a short textual summary. The
// core treats it as a black box; only rc and the summary are consumed. The
// timeout-bounded exec.CommandContext wrapper is grounded on
// internal/gitutil's run() helper.
package prdverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no engine binary was set, so callers can
// treat PRD verification as always-clean rather than erroring (spec's
// prd_done guard default).
var ErrNotConfigured = errors.New("prdverify: no engine binary configured")

// Result is the outcome of one verification run.
type Result struct {
	Passed  bool
	Summary string
}

// Engine invokes an external PRD-verification binary.
type Engine struct {
	// Command is the engine binary path or name on PATH. Empty disables
	// verification entirely (ErrNotConfigured).
	Command string
	Timeout time.Duration
}

// New returns an Engine bound to command, using a default 30s timeout.
func New(command string) *Engine {
	return &Engine{Command: command, Timeout: 30 * time.Second}
}

// request is the JSON payload piped to the engine's stdin.
type request struct {
	ProjectDir   string   `json:"project_dir"`
	ChangedFiles []string `json:"changed_files"`
	OutputPath   string   `json:"output_path"`
}

// Verify runs the configured engine against projectDir, reporting which
// files changed, and expects it to write its findings to outputPath. The rc
// and a short summary (the first line of outputPath when present, else the
// first line of stderr) are returned; a timeout is reported as a non-pass Result, not an
// error, per spec §7's "external command timeouts are always recovered
// locally" policy -- the caller logs and proceeds.
func (e *Engine) Verify(ctx context.Context, projectDir string, changedFiles []string, outputPath string) (Result, error) {
	if e.Command == "" {
		return Result{}, ErrNotConfigured
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(request{ProjectDir: projectDir, ChangedFiles: changedFiles, OutputPath: outputPath})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(cctx, e.Command)
	cmd.Dir = projectDir
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return Result{Passed: false, Summary: fmt.Sprintf("prd-verify: timeout(%s)", timeout)}, nil
	}

	summary := readSummary(outputPath, stderr.String())
	if runErr != nil {
		if summary == "" {
			summary = strings.TrimSpace(runErr.Error())
		}
		return Result{Passed: false, Summary: summary}, nil
	}
	return Result{Passed: true, Summary: summary}, nil
}

func readSummary(outputPath, stderrTail string) string {
	if outputPath != "" {
		if data, err := os.ReadFile(outputPath); err == nil {
			if s := strings.TrimSpace(string(data)); s != "" {
				return firstLine(s)
			}
		}
	}
	return firstLine(strings.TrimSpace(stderrTail))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
