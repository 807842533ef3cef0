// Package config provides configuration management for autopilot.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (AUTOPILOT_*)
// 3. Project config (.autopilot/config.yaml in cwd)
// 4. Home config (~/.autopilot/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all autopilot configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the autopilot data directory (default: ~/.autopilot).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// SessionName is the fixed tmux session containing one window per project.
	SessionName string `yaml:"session_name" json:"session_name"`

	// TickSeconds is the main supervisor loop period.
	TickSeconds int `yaml:"tick_seconds" json:"tick_seconds"`

	// Commands names the external binaries the collaborators shell out to.
	Commands CommandsConfig `yaml:"commands" json:"commands"`

	// Thresholds holds guard and classifier tuning knobs.
	Thresholds ThresholdsConfig `yaml:"thresholds" json:"thresholds"`

	// Cooldowns holds per-action cooldown durations, in seconds.
	Cooldowns CooldownsConfig `yaml:"cooldowns" json:"cooldowns"`

	// Notify holds notification-transport settings.
	Notify NotifyConfig `yaml:"notify" json:"notify"`
}

// CommandsConfig holds the CLI command names used by collaborators.
// All are overridable so a project can point at a wrapper or a non-PATH binary.
type CommandsConfig struct {
	// Tmux is the terminal-multiplexer binary. Default: "tmux".
	Tmux string `yaml:"tmux" json:"tmux"`
	// Git is the VCS plumbing binary. Default: "git".
	Git string `yaml:"git" json:"git"`
	// Runtime is the command used to relaunch the assistant in resume-shell.
	// Default: "claude".
	Runtime string `yaml:"runtime" json:"runtime"`
	// TypeChecker is the Layer-1 type-check command, run when a project
	// declares a type-checked configuration. Default: "" (disabled).
	TypeChecker string `yaml:"type_checker" json:"type_checker"`
	// TestRunner is the Layer-1 test command run on fix: commits.
	// Default: "" (disabled).
	TestRunner string `yaml:"test_runner" json:"test_runner"`
	// PRDVerify is the external PRD verification engine binary.
	// Default: "" (disabled; prd_done guard treats it as always-clean).
	PRDVerify string `yaml:"prd_verify" json:"prd_verify"`
}

// ThresholdsConfig holds guard and classifier tuning knobs from spec §4.E.
type ThresholdsConfig struct {
	// LowContextPct is the ceiling (inclusive) for idle_low_context nudging.
	LowContextPct int `yaml:"low_context_pct" json:"low_context_pct"`
	// LowContextCriticalPct is loaded and merged like the other thresholds,
	// but no component reads it: it has no effect on alerts or actions.
	LowContextCriticalPct int `yaml:"low_context_critical_pct" json:"low_context_critical_pct"`
	// WeeklyLimitLowPct suppresses normal nudges when the weekly quota
	// observed by the classifier falls at or below this percentage.
	WeeklyLimitLowPct int `yaml:"weekly_limit_low_pct" json:"weekly_limit_low_pct"`
	// ReviewCommitThreshold is the commits-since-review count that forces
	// a review trigger regardless of elapsed time.
	ReviewCommitThreshold int `yaml:"review_commit_threshold" json:"review_commit_threshold"`
	// ReviewStaleSeconds is the elapsed-time fallback: any unreviewed
	// commit older than this forces a trigger.
	ReviewStaleSeconds int `yaml:"review_stale_seconds" json:"review_stale_seconds"`
	// IdleConfirmations is the number of consecutive idle probes required
	// before a nudge is permitted.
	IdleConfirmations int `yaml:"idle_confirmations" json:"idle_confirmations"`
	// WorkingInertiaSeconds is the recent-activity window that suppresses
	// idle guards.
	WorkingInertiaSeconds int `yaml:"working_inertia_seconds" json:"working_inertia_seconds"`
	// ManualTaskTTLSeconds is the grace window after a manual message
	// before re-nudging resumes.
	ManualTaskTTLSeconds int `yaml:"manual_task_ttl_seconds" json:"manual_task_ttl_seconds"`
	// NudgeBackoffBaseSeconds is the base of the exponential nudge backoff.
	NudgeBackoffBaseSeconds int `yaml:"nudge_backoff_base_seconds" json:"nudge_backoff_base_seconds"`
	// NudgeBackoffMaxRetries is the attempt count at which nudging stops and
	// a stall alert is raised; the backoff exponent is capped at 5 on its own.
	NudgeBackoffMaxRetries int `yaml:"nudge_backoff_max_retries" json:"nudge_backoff_max_retries"`
	// Layer1CooldownSeconds debounces the Layer-1 automated checks.
	Layer1CooldownSeconds int `yaml:"layer1_cooldown_seconds" json:"layer1_cooldown_seconds"`
	// StallWarnSeconds / StallAlertSeconds gate the working-stall log
	// escalation in the supervisor loop.
	StallWarnSeconds  int `yaml:"stall_warn_seconds" json:"stall_warn_seconds"`
	StallAlertSeconds int `yaml:"stall_alert_seconds" json:"stall_alert_seconds"`
}

// CooldownsConfig holds per-action cooldown durations, in seconds.
type CooldownsConfig struct {
	PermissionSeconds int `yaml:"permission_seconds" json:"permission_seconds"`
	CompactSeconds    int `yaml:"compact_seconds" json:"compact_seconds"`
	ShellSeconds      int `yaml:"shell_seconds" json:"shell_seconds"`
	ReviewSeconds     int `yaml:"review_seconds" json:"review_seconds"`
}

// NotifyConfig holds notification-transport settings.
type NotifyConfig struct {
	// Enabled turns the notify transport on; false is a silent no-op sink.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// CredentialsPath points at the optional bot-token/chat-id YAML.
	// Default: "" (resolved to <home>/.autopilot/notify.yaml).
	CredentialsPath string `yaml:"credentials_path" json:"credentials_path"`
	// RateLimitSeconds is loaded and merged but read by no component; alerts
	// reach the transport without a rate limit.
	RateLimitSeconds int `yaml:"rate_limit_seconds" json:"rate_limit_seconds"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "table"
	defaultBaseDir = ".autopilot"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Output:      defaultOutput,
		BaseDir:     filepath.Join(homeDir, ".autopilot"),
		Verbose:     false,
		SessionName: "autopilot",
		TickSeconds: 10,
		Commands: CommandsConfig{
			Tmux:    "tmux",
			Git:     "git",
			Runtime: "claude",
		},
		Thresholds: ThresholdsConfig{
			LowContextPct:           25,
			LowContextCriticalPct:   0,
			WeeklyLimitLowPct:       10,
			ReviewCommitThreshold:   15,
			ReviewStaleSeconds:      7200,
			IdleConfirmations:       3,
			WorkingInertiaSeconds:   90,
			ManualTaskTTLSeconds:    300,
			NudgeBackoffBaseSeconds: 30,
			NudgeBackoffMaxRetries:  5,
			Layer1CooldownSeconds:   120,
			StallWarnSeconds:        900,
			StallAlertSeconds:       1800,
		},
		Cooldowns: CooldownsConfig{
			PermissionSeconds: 60,
			CompactSeconds:    600,
			ShellSeconds:      300,
			ReviewSeconds:     120,
		},
		Notify: NotifyConfig{
			Enabled:          false,
			RateLimitSeconds: 60,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	// Load home config
	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	// Load project config
	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	// Apply environment variables
	cfg = applyEnv(cfg)

	// Apply flag overrides
	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".autopilot", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("AUTOPILOT_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".autopilot", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("AUTOPILOT_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("AUTOPILOT_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if os.Getenv("AUTOPILOT_VERBOSE") == "true" || os.Getenv("AUTOPILOT_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("AUTOPILOT_SESSION_NAME"); v != "" {
		cfg.SessionName = v
	}
	if v := os.Getenv("AUTOPILOT_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TickSeconds = n
		}
	}
	if v := os.Getenv("AUTOPILOT_TMUX_COMMAND"); v != "" {
		cfg.Commands.Tmux = v
	}
	if v := os.Getenv("AUTOPILOT_GIT_COMMAND"); v != "" {
		cfg.Commands.Git = v
	}
	if v := os.Getenv("AUTOPILOT_RUNTIME_COMMAND"); v != "" {
		cfg.Commands.Runtime = v
	}
	if v := os.Getenv("AUTOPILOT_NOTIFY_CREDENTIALS"); v != "" {
		cfg.Notify.CredentialsPath = v
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
// Zero values in src are treated as "not set" for scalars; this mirrors the
// teacher's precedence scheme and means a YAML fragment need only name the
// fields it overrides.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.BaseDir != "" {
		dst.BaseDir = src.BaseDir
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.SessionName != "" {
		dst.SessionName = src.SessionName
	}
	if src.TickSeconds != 0 {
		dst.TickSeconds = src.TickSeconds
	}

	if src.Commands.Tmux != "" {
		dst.Commands.Tmux = src.Commands.Tmux
	}
	if src.Commands.Git != "" {
		dst.Commands.Git = src.Commands.Git
	}
	if src.Commands.Runtime != "" {
		dst.Commands.Runtime = src.Commands.Runtime
	}
	if src.Commands.TypeChecker != "" {
		dst.Commands.TypeChecker = src.Commands.TypeChecker
	}
	if src.Commands.TestRunner != "" {
		dst.Commands.TestRunner = src.Commands.TestRunner
	}
	if src.Commands.PRDVerify != "" {
		dst.Commands.PRDVerify = src.Commands.PRDVerify
	}

	if src.Thresholds.LowContextPct != 0 {
		dst.Thresholds.LowContextPct = src.Thresholds.LowContextPct
	}
	if src.Thresholds.LowContextCriticalPct != 0 {
		dst.Thresholds.LowContextCriticalPct = src.Thresholds.LowContextCriticalPct
	}
	if src.Thresholds.WeeklyLimitLowPct != 0 {
		dst.Thresholds.WeeklyLimitLowPct = src.Thresholds.WeeklyLimitLowPct
	}
	if src.Thresholds.ReviewCommitThreshold != 0 {
		dst.Thresholds.ReviewCommitThreshold = src.Thresholds.ReviewCommitThreshold
	}
	if src.Thresholds.ReviewStaleSeconds != 0 {
		dst.Thresholds.ReviewStaleSeconds = src.Thresholds.ReviewStaleSeconds
	}
	if src.Thresholds.IdleConfirmations != 0 {
		dst.Thresholds.IdleConfirmations = src.Thresholds.IdleConfirmations
	}
	if src.Thresholds.WorkingInertiaSeconds != 0 {
		dst.Thresholds.WorkingInertiaSeconds = src.Thresholds.WorkingInertiaSeconds
	}
	if src.Thresholds.ManualTaskTTLSeconds != 0 {
		dst.Thresholds.ManualTaskTTLSeconds = src.Thresholds.ManualTaskTTLSeconds
	}
	if src.Thresholds.NudgeBackoffBaseSeconds != 0 {
		dst.Thresholds.NudgeBackoffBaseSeconds = src.Thresholds.NudgeBackoffBaseSeconds
	}
	if src.Thresholds.NudgeBackoffMaxRetries != 0 {
		dst.Thresholds.NudgeBackoffMaxRetries = src.Thresholds.NudgeBackoffMaxRetries
	}
	if src.Thresholds.Layer1CooldownSeconds != 0 {
		dst.Thresholds.Layer1CooldownSeconds = src.Thresholds.Layer1CooldownSeconds
	}
	if src.Thresholds.StallWarnSeconds != 0 {
		dst.Thresholds.StallWarnSeconds = src.Thresholds.StallWarnSeconds
	}
	if src.Thresholds.StallAlertSeconds != 0 {
		dst.Thresholds.StallAlertSeconds = src.Thresholds.StallAlertSeconds
	}

	if src.Cooldowns.PermissionSeconds != 0 {
		dst.Cooldowns.PermissionSeconds = src.Cooldowns.PermissionSeconds
	}
	if src.Cooldowns.CompactSeconds != 0 {
		dst.Cooldowns.CompactSeconds = src.Cooldowns.CompactSeconds
	}
	if src.Cooldowns.ShellSeconds != 0 {
		dst.Cooldowns.ShellSeconds = src.Cooldowns.ShellSeconds
	}
	if src.Cooldowns.ReviewSeconds != 0 {
		dst.Cooldowns.ReviewSeconds = src.Cooldowns.ReviewSeconds
	}

	if src.Notify.Enabled {
		dst.Notify.Enabled = true
	}
	if src.Notify.CredentialsPath != "" {
		dst.Notify.CredentialsPath = src.Notify.CredentialsPath
	}
	if src.Notify.RateLimitSeconds != 0 {
		dst.Notify.RateLimitSeconds = src.Notify.RateLimitSeconds
	}

	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.autopilot/config.yaml"
	SourceProject Source = ".autopilot/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// resolved pairs a value with the config layer it came from, for `autopilot
// config --show` style introspection.
type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output        resolved `json:"output"`
	BaseDir       resolved `json:"base_dir"`
	Verbose       resolved `json:"verbose"`
	SessionName   resolved `json:"session_name"`
	TmuxCommand   resolved `json:"tmux_command"`
	GitCommand    resolved `json:"git_command"`
	RuntimeCmd    resolved `json:"runtime_command"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeBaseDir, homeSession, homeTmux, homeGit, homeRuntime string
	var homeVerbose bool
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeBaseDir = homeConfig.BaseDir
		homeVerbose = homeConfig.Verbose
		homeSession = homeConfig.SessionName
		homeTmux = homeConfig.Commands.Tmux
		homeGit = homeConfig.Commands.Git
		homeRuntime = homeConfig.Commands.Runtime
	}

	var projectOutput, projectBaseDir, projectSession, projectTmux, projectGit, projectRuntime string
	var projectVerbose bool
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectBaseDir = projectConfig.BaseDir
		projectVerbose = projectConfig.Verbose
		projectSession = projectConfig.SessionName
		projectTmux = projectConfig.Commands.Tmux
		projectGit = projectConfig.Commands.Git
		projectRuntime = projectConfig.Commands.Runtime
	}

	envOutput := os.Getenv("AUTOPILOT_OUTPUT")
	envBaseDir := os.Getenv("AUTOPILOT_BASE_DIR")
	envVerbose := os.Getenv("AUTOPILOT_VERBOSE") == "true" || os.Getenv("AUTOPILOT_VERBOSE") == "1"
	envSession := os.Getenv("AUTOPILOT_SESSION_NAME")
	envTmux := os.Getenv("AUTOPILOT_TMUX_COMMAND")
	envGit := os.Getenv("AUTOPILOT_GIT_COMMAND")
	envRuntime := os.Getenv("AUTOPILOT_RUNTIME_COMMAND")

	rc := &ResolvedConfig{
		Output:      resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		BaseDir:     resolveStringField(homeBaseDir, projectBaseDir, envBaseDir, flagBaseDir, defaultBaseDir),
		Verbose:     resolved{Value: false, Source: SourceDefault},
		SessionName: resolveStringField(homeSession, projectSession, envSession, "", "autopilot"),
		TmuxCommand: resolveStringField(homeTmux, projectTmux, envTmux, "", "tmux"),
		GitCommand:  resolveStringField(homeGit, projectGit, envGit, "", "git"),
		RuntimeCmd:  resolveStringField(homeRuntime, projectRuntime, envRuntime, "", "claude"),
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
