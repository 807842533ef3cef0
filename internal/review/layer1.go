// Package review implements the Review Pipeline (component F, spec §4.F):
// the trigger emitter that runs inside the supervisor's per-tick commit
// detection, and the two-phase consumer that composes and parses Layer-2
// review instructions. Layer-1 automated checks (suspicious-pattern scan,
// type checker, test runner) are grounded on the teacher's
// runSupervisorGates/runGateScript optional-vs-required gate list, widened
// from two fixed scripts to the three checks spec §4.F names.
package review

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/watchloop/autopilot/internal/worker"
)

// suspiciousPatterns are the default weak-secret/dangerous-call heuristics
// scanned across tracked source files. Projects may extend this list via
// Layer1Config.ExtraPatterns.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\beval\(`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*["'][A-Za-z0-9/+=]{16,}["']`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*["'][A-Za-z0-9/+=]{16,}["']`),
	regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']{4,}["']`),
}

// Layer1Config tunes the automated-check pass for one project. Empty
// TypeChecker/TestRunner disables that sub-check (spec §4.F: "if the project
// declares a type-checked configuration").
type Layer1Config struct {
	TypeChecker        string
	TypeCheckerTimeout time.Duration
	TestRunner         string
	TestRunnerTimeout  time.Duration
	ExtraPatterns      []*regexp.Regexp
}

// Layer1Result is the aggregated outcome of one automated-check pass.
type Layer1Result struct {
	Findings []string
	Hash     string // content hash, for the caller's dedup-against-last-run check
}

// Summary renders Findings as the single short string spec §4.F says gets
// written to autocheck-issues-<w>.
func (r Layer1Result) Summary() string {
	return strings.Join(r.Findings, "; ")
}

// RunLayer1 scans projectDir's tracked source files for suspicious patterns,
// optionally runs a type checker, and — when commitIsFix is true — a test
// runner, aggregating findings into one result. trackedFiles is the git
// ls-files-equivalent list the caller already has on hand (changed or full
// tree, caller's choice); RunLayer1 does not shell out to git itself.
func RunLayer1(ctx context.Context, projectDir string, trackedFiles []string, commitIsFix bool, cfg Layer1Config) Layer1Result {
	var findings []string

	if hit := scanSuspiciousPatterns(projectDir, trackedFiles, cfg.ExtraPatterns); hit != "" {
		findings = append(findings, hit)
	}

	if cfg.TypeChecker != "" {
		if msg := runTimedCheck(ctx, projectDir, cfg.TypeChecker, timeoutOr(cfg.TypeCheckerTimeout, 30*time.Second), "tsc"); msg != "" {
			findings = append(findings, msg)
		}
	}

	if commitIsFix && cfg.TestRunner != "" {
		if msg := runTimedCheck(ctx, projectDir, cfg.TestRunner, timeoutOr(cfg.TestRunnerTimeout, 60*time.Second), "tests"); msg != "" {
			findings = append(findings, msg)
		}
	}

	result := Layer1Result{Findings: findings}
	sum := sha256.Sum256([]byte(result.Summary()))
	result.Hash = hex.EncodeToString(sum[:])
	return result
}

func timeoutOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// scanSuspiciousPatterns fans the per-file scan out across a worker.Pool so
// a project with hundreds of tracked files doesn't serialize disk I/O on a
// single goroutine; worker.Pool preserves the original file order in its
// results, so the aggregated hit list stays deterministic regardless of
// which file's goroutine finishes first.
func scanSuspiciousPatterns(projectDir string, trackedFiles []string, extra []*regexp.Regexp) string {
	patterns := suspiciousPatterns
	if len(extra) > 0 {
		patterns = append(append([]*regexp.Regexp{}, suspiciousPatterns...), extra...)
	}

	scannable := make([]string, 0, len(trackedFiles))
	for _, rel := range trackedFiles {
		if isScannableSource(rel) {
			scannable = append(scannable, rel)
		}
	}

	pool := worker.NewPool[[]string](0)
	results := pool.Process(scannable, func(rel string) ([]string, error) {
		return scanFileForPatterns(projectDir, rel, patterns), nil
	})

	var hits []string
	for _, r := range results {
		hits = append(hits, r.Value...)
	}
	if len(hits) == 0 {
		return ""
	}
	return fmt.Sprintf("suspicious pattern: %s", strings.Join(hits, ", "))
}

func scanFileForPatterns(projectDir, rel string, patterns []*regexp.Regexp) []string {
	f, err := os.Open(filepath.Join(projectDir, rel))
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []string
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, p := range patterns {
			if p.MatchString(line) {
				hits = append(hits, fmt.Sprintf("%s:%d", rel, lineNo))
				break
			}
		}
	}
	return hits
}

func isScannableSource(rel string) bool {
	switch filepath.Ext(rel) {
	case ".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rb", ".sh", ".yaml", ".yml", ".env":
		return true
	default:
		return false
	}
}

func runTimedCheck(ctx context.Context, dir, command string, timeout time.Duration, label string) string {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	cmd := exec.CommandContext(cctx, fields[0], fields[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("%s: timeout(%s)", label, timeout)
	}
	if err != nil {
		tail := lastLine(out.String())
		return fmt.Sprintf("%s: failed (%s)", label, tail)
	}
	return ""
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "no output"
	}
	lines := strings.Split(s, "\n")
	return lines[len(lines)-1]
}
