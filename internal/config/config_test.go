package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output != "table" {
		t.Errorf("Default Output = %q, want %q", cfg.Output, "table")
	}
	if cfg.Verbose {
		t.Error("Default Verbose = true, want false")
	}
	if cfg.SessionName != "autopilot" {
		t.Errorf("Default SessionName = %q, want %q", cfg.SessionName, "autopilot")
	}
	if cfg.TickSeconds != 10 {
		t.Errorf("Default TickSeconds = %d, want %d", cfg.TickSeconds, 10)
	}
	if cfg.Commands.Tmux != "tmux" {
		t.Errorf("Default Commands.Tmux = %q, want %q", cfg.Commands.Tmux, "tmux")
	}
	if cfg.Commands.Git != "git" {
		t.Errorf("Default Commands.Git = %q, want %q", cfg.Commands.Git, "git")
	}
	if cfg.Commands.Runtime != "claude" {
		t.Errorf("Default Commands.Runtime = %q, want %q", cfg.Commands.Runtime, "claude")
	}
	if cfg.Thresholds.ReviewCommitThreshold != 15 {
		t.Errorf("Default Thresholds.ReviewCommitThreshold = %d, want %d", cfg.Thresholds.ReviewCommitThreshold, 15)
	}
	if cfg.Thresholds.ReviewStaleSeconds != 7200 {
		t.Errorf("Default Thresholds.ReviewStaleSeconds = %d, want %d", cfg.Thresholds.ReviewStaleSeconds, 7200)
	}
	if cfg.Thresholds.IdleConfirmations != 3 {
		t.Errorf("Default Thresholds.IdleConfirmations = %d, want %d", cfg.Thresholds.IdleConfirmations, 3)
	}
	if cfg.Thresholds.NudgeBackoffMaxRetries != 5 {
		t.Errorf("Default Thresholds.NudgeBackoffMaxRetries = %d, want %d", cfg.Thresholds.NudgeBackoffMaxRetries, 5)
	}
	if cfg.Cooldowns.PermissionSeconds != 60 {
		t.Errorf("Default Cooldowns.PermissionSeconds = %d, want %d", cfg.Cooldowns.PermissionSeconds, 60)
	}
	if cfg.Cooldowns.CompactSeconds != 600 {
		t.Errorf("Default Cooldowns.CompactSeconds = %d, want %d", cfg.Cooldowns.CompactSeconds, 600)
	}
	if cfg.Cooldowns.ShellSeconds != 300 {
		t.Errorf("Default Cooldowns.ShellSeconds = %d, want %d", cfg.Cooldowns.ShellSeconds, 300)
	}
	if cfg.Notify.Enabled {
		t.Error("Default Notify.Enabled = true, want false")
	}
	if cfg.Notify.RateLimitSeconds != 60 {
		t.Errorf("Default Notify.RateLimitSeconds = %d, want %d", cfg.Notify.RateLimitSeconds, 60)
	}

	homeDir, _ := os.UserHomeDir()
	if cfg.BaseDir != filepath.Join(homeDir, ".autopilot") {
		t.Errorf("Default BaseDir = %q, want %q", cfg.BaseDir, filepath.Join(homeDir, ".autopilot"))
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{
		Output:  "json",
		BaseDir: "/custom/path",
	}

	result := merge(dst, src)

	if result.Output != "json" {
		t.Errorf("merge Output = %q, want %q", result.Output, "json")
	}
	if result.BaseDir != "/custom/path" {
		t.Errorf("merge BaseDir = %q, want %q", result.BaseDir, "/custom/path")
	}
	// Defaults should be preserved when not overridden
	if result.Thresholds.IdleConfirmations != 3 {
		t.Errorf("merge preserved IdleConfirmations = %d, want %d", result.Thresholds.IdleConfirmations, 3)
	}
}

func TestMerge_VerboseOverride(t *testing.T) {
	dst := Default()
	src := &Config{Verbose: true}

	result := merge(dst, src)

	if !result.Verbose {
		t.Error("merge Verbose = false, want true")
	}
}

func TestMerge_NotifyOverride(t *testing.T) {
	dst := Default()
	if dst.Notify.Enabled {
		t.Fatal("Precondition: default Notify.Enabled should be false")
	}

	src := &Config{
		Notify: NotifyConfig{
			Enabled:         true,
			CredentialsPath: "/custom/notify.yaml",
		},
	}

	result := merge(dst, src)

	if !result.Notify.Enabled {
		t.Error("merge should override Notify.Enabled to true")
	}
	if result.Notify.CredentialsPath != "/custom/notify.yaml" {
		t.Errorf("merge Notify.CredentialsPath = %q, want %q", result.Notify.CredentialsPath, "/custom/notify.yaml")
	}
}

func TestMerge_CommandsOverride(t *testing.T) {
	dst := Default()
	src := &Config{
		Commands: CommandsConfig{
			Tmux:    "tmux-custom",
			Git:     "git-custom",
			Runtime: "codex",
		},
	}

	result := merge(dst, src)

	if result.Commands.Tmux != "tmux-custom" {
		t.Errorf("merge Commands.Tmux = %q, want %q", result.Commands.Tmux, "tmux-custom")
	}
	if result.Commands.Git != "git-custom" {
		t.Errorf("merge Commands.Git = %q, want %q", result.Commands.Git, "git-custom")
	}
	if result.Commands.Runtime != "codex" {
		t.Errorf("merge Commands.Runtime = %q, want %q", result.Commands.Runtime, "codex")
	}
}

func TestMerge_ThresholdsPreservedWhenZero(t *testing.T) {
	dst := Default()
	src := &Config{Output: "json"}

	result := merge(dst, src)

	if result.Thresholds.LowContextPct != 25 {
		t.Errorf("merge should preserve default LowContextPct, got %d", result.Thresholds.LowContextPct)
	}
	if result.Thresholds.WorkingInertiaSeconds != 90 {
		t.Errorf("merge should preserve default WorkingInertiaSeconds, got %d", result.Thresholds.WorkingInertiaSeconds)
	}
}

func TestApplyEnv(t *testing.T) {
	origOutput := os.Getenv("AUTOPILOT_OUTPUT")
	origVerbose := os.Getenv("AUTOPILOT_VERBOSE")
	defer func() {
		_ = os.Setenv("AUTOPILOT_OUTPUT", origOutput)
		_ = os.Setenv("AUTOPILOT_VERBOSE", origVerbose)
	}()

	_ = os.Setenv("AUTOPILOT_OUTPUT", "yaml")
	_ = os.Setenv("AUTOPILOT_VERBOSE", "true")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Output != "yaml" {
		t.Errorf("applyEnv Output = %q, want %q", cfg.Output, "yaml")
	}
	if !cfg.Verbose {
		t.Error("applyEnv Verbose = false, want true")
	}
}

func TestApplyEnv_TickSeconds(t *testing.T) {
	t.Setenv("AUTOPILOT_TICK_SECONDS", "20")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.TickSeconds != 20 {
		t.Errorf("applyEnv TickSeconds = %d, want %d", cfg.TickSeconds, 20)
	}
}

func TestApplyEnv_TickSecondsInvalidIgnored(t *testing.T) {
	t.Setenv("AUTOPILOT_TICK_SECONDS", "not-a-number")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.TickSeconds != 10 {
		t.Errorf("applyEnv TickSeconds = %d, want default %d for invalid input", cfg.TickSeconds, 10)
	}
}

func TestApplyEnv_CommandOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_TMUX_COMMAND", "tmux-env")
	t.Setenv("AUTOPILOT_GIT_COMMAND", "git-env")
	t.Setenv("AUTOPILOT_RUNTIME_COMMAND", "runtime-env")

	cfg := Default()
	cfg = applyEnv(cfg)

	if cfg.Commands.Tmux != "tmux-env" {
		t.Errorf("applyEnv Commands.Tmux = %q, want %q", cfg.Commands.Tmux, "tmux-env")
	}
	if cfg.Commands.Git != "git-env" {
		t.Errorf("applyEnv Commands.Git = %q, want %q", cfg.Commands.Git, "git-env")
	}
	if cfg.Commands.Runtime != "runtime-env" {
		t.Errorf("applyEnv Commands.Runtime = %q, want %q", cfg.Commands.Runtime, "runtime-env")
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
output: json
base_dir: /custom/olympus
verbose: true
thresholds:
  idle_confirmations: 5
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromPath(configPath)
	if err != nil {
		t.Fatalf("loadFromPath() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("loadFromPath Output = %q, want %q", cfg.Output, "json")
	}
	if cfg.BaseDir != "/custom/olympus" {
		t.Errorf("loadFromPath BaseDir = %q, want %q", cfg.BaseDir, "/custom/olympus")
	}
	if !cfg.Verbose {
		t.Error("loadFromPath Verbose = false, want true")
	}
	if cfg.Thresholds.IdleConfirmations != 5 {
		t.Errorf("loadFromPath Thresholds.IdleConfirmations = %d, want %d", cfg.Thresholds.IdleConfirmations, 5)
	}
}

func TestLoadFromPath_NotExists(t *testing.T) {
	cfg, err := loadFromPath("/nonexistent/config.yaml")
	if cfg != nil {
		t.Errorf("loadFromPath for nonexistent file should return nil config")
	}
	if err == nil {
		t.Errorf("loadFromPath for nonexistent file should return error")
	}
}

func TestLoadFromPath_Empty(t *testing.T) {
	cfg, err := loadFromPath("")
	if cfg != nil || err != nil {
		t.Errorf("loadFromPath(\"\") = %v, %v; want nil, nil", cfg, err)
	}
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `{{{invalid yaml`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromPath(configPath)
	if err == nil {
		t.Error("loadFromPath for invalid YAML should return error")
	}
	if cfg != nil {
		t.Error("loadFromPath for invalid YAML should return nil config")
	}
}

func TestResolveStringField(t *testing.T) {
	tests := []struct {
		name       string
		home       string
		project    string
		env        string
		flag       string
		def        string
		wantValue  string
		wantSource Source
	}{
		{
			name:       "default only",
			def:        "table",
			wantValue:  "table",
			wantSource: SourceDefault,
		},
		{
			name:       "home overrides default",
			home:       "json",
			def:        "table",
			wantValue:  "json",
			wantSource: SourceHome,
		},
		{
			name:       "project overrides home",
			home:       "json",
			project:    "yaml",
			def:        "table",
			wantValue:  "yaml",
			wantSource: SourceProject,
		},
		{
			name:       "env overrides project",
			home:       "json",
			project:    "yaml",
			env:        "csv",
			def:        "table",
			wantValue:  "csv",
			wantSource: SourceEnv,
		},
		{
			name:       "flag overrides everything",
			home:       "json",
			project:    "yaml",
			env:        "csv",
			flag:       "text",
			def:        "table",
			wantValue:  "text",
			wantSource: SourceFlag,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStringField(tt.home, tt.project, tt.env, tt.flag, tt.def)
			if got.Value != tt.wantValue {
				t.Errorf("resolveStringField() Value = %v, want %v", got.Value, tt.wantValue)
			}
			if got.Source != tt.wantSource {
				t.Errorf("resolveStringField() Source = %v, want %v", got.Source, tt.wantSource)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	rc := Resolve("json", "/flag/path", true)

	if rc.Output.Value != "json" {
		t.Errorf("Resolve Output.Value = %v, want %q", rc.Output.Value, "json")
	}
	if rc.Output.Source != SourceFlag {
		t.Errorf("Resolve Output.Source = %v, want %v", rc.Output.Source, SourceFlag)
	}
	if rc.BaseDir.Value != "/flag/path" {
		t.Errorf("Resolve BaseDir.Value = %v, want %q", rc.BaseDir.Value, "/flag/path")
	}
	if rc.Verbose.Value != true {
		t.Errorf("Resolve Verbose.Value = %v, want true", rc.Verbose.Value)
	}
}

func TestResolve_Defaults(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	for _, key := range []string{"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE"} {
		t.Setenv(key, "")
	}

	rc := Resolve("", "", false)

	if rc.Output.Value != "table" {
		t.Errorf("Resolve default Output.Value = %v, want %q", rc.Output.Value, "table")
	}
	if rc.Verbose.Value != false {
		t.Errorf("Resolve default Verbose.Value = %v, want false", rc.Verbose.Value)
	}
	if rc.SessionName.Value != "autopilot" {
		t.Errorf("Resolve default SessionName.Value = %v, want %q", rc.SessionName.Value, "autopilot")
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	t.Setenv("AUTOPILOT_OUTPUT", "yaml")
	t.Setenv("AUTOPILOT_BASE_DIR", "/env/path")
	t.Setenv("AUTOPILOT_VERBOSE", "1")

	rc := Resolve("", "", false)

	if rc.Output.Value != "yaml" {
		t.Errorf("Resolve env Output.Value = %v, want %q", rc.Output.Value, "yaml")
	}
	if rc.Output.Source != SourceEnv {
		t.Errorf("Resolve env Output.Source = %v, want %v", rc.Output.Source, SourceEnv)
	}
	if rc.BaseDir.Value != "/env/path" {
		t.Errorf("Resolve env BaseDir.Value = %v, want %q", rc.BaseDir.Value, "/env/path")
	}
	if rc.Verbose.Value != true {
		t.Errorf("Resolve env Verbose.Value = %v, want true", rc.Verbose.Value)
	}
}

func TestResolve_CommandEnvOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	t.Setenv("AUTOPILOT_TMUX_COMMAND", "tmux-env")
	t.Setenv("AUTOPILOT_GIT_COMMAND", "git-env")
	t.Setenv("AUTOPILOT_RUNTIME_COMMAND", "runtime-env")

	rc := Resolve("", "", false)

	if rc.TmuxCommand.Value != "tmux-env" || rc.TmuxCommand.Source != SourceEnv {
		t.Fatalf("TmuxCommand = (%v, %v), want (tmux-env, %v)", rc.TmuxCommand.Value, rc.TmuxCommand.Source, SourceEnv)
	}
	if rc.GitCommand.Value != "git-env" || rc.GitCommand.Source != SourceEnv {
		t.Fatalf("GitCommand = (%v, %v), want (git-env, %v)", rc.GitCommand.Value, rc.GitCommand.Source, SourceEnv)
	}
	if rc.RuntimeCmd.Value != "runtime-env" || rc.RuntimeCmd.Source != SourceEnv {
		t.Fatalf("RuntimeCmd = (%v, %v), want (runtime-env, %v)", rc.RuntimeCmd.Value, rc.RuntimeCmd.Source, SourceEnv)
	}
}

func TestProjectConfigPath_UsesAutopilotConfigEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "custom.yaml")
	t.Setenv("AUTOPILOT_CONFIG", configPath)

	got := projectConfigPath()
	if got != configPath {
		t.Fatalf("projectConfigPath() = %q, want %q", got, configPath)
	}
}

func TestProjectConfigPath_DefaultFromCwd(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	got := projectConfigPath()
	cwd, _ := os.Getwd()
	expected := filepath.Join(cwd, ".autopilot", "config.yaml")
	if got != expected {
		t.Errorf("projectConfigPath() = %q, want %q", got, expected)
	}
}

func TestProjectConfigPath_WhitespaceOnlyConfig(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "  \t  ")
	got := projectConfigPath()
	cwd, _ := os.Getwd()
	expected := filepath.Join(cwd, ".autopilot", "config.yaml")
	if got != expected {
		t.Errorf("projectConfigPath() with whitespace = %q, want %q", got, expected)
	}
}

func TestResolve_WithProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
base_dir: /project/base
verbose: true
commands:
  tmux: custom-tmux
  git: custom-git
  runtime: custom-claude
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTOPILOT_CONFIG", configPath)
	for _, key := range []string{
		"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE",
		"AUTOPILOT_TMUX_COMMAND", "AUTOPILOT_GIT_COMMAND", "AUTOPILOT_RUNTIME_COMMAND",
	} {
		t.Setenv(key, "")
	}

	rc := Resolve("", "", false)

	if rc.Output.Value != "yaml" || rc.Output.Source != SourceProject {
		t.Errorf("Output = (%v, %v), want (yaml, %v)", rc.Output.Value, rc.Output.Source, SourceProject)
	}
	if rc.BaseDir.Value != "/project/base" || rc.BaseDir.Source != SourceProject {
		t.Errorf("BaseDir = (%v, %v), want (/project/base, %v)", rc.BaseDir.Value, rc.BaseDir.Source, SourceProject)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceProject {
		t.Errorf("Verbose = (%v, %v), want (true, %v)", rc.Verbose.Value, rc.Verbose.Source, SourceProject)
	}
	if rc.TmuxCommand.Value != "custom-tmux" || rc.TmuxCommand.Source != SourceProject {
		t.Errorf("TmuxCommand = (%v, %v), want (custom-tmux, %v)", rc.TmuxCommand.Value, rc.TmuxCommand.Source, SourceProject)
	}
}

func TestResolve_FlagOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
base_dir: /project/base
verbose: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTOPILOT_CONFIG", configPath)
	for _, key := range []string{"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE"} {
		t.Setenv(key, "")
	}

	rc := Resolve("json", "/flag/dir", true)

	if rc.Output.Value != "json" || rc.Output.Source != SourceFlag {
		t.Errorf("Flag should override project: Output = (%v, %v)", rc.Output.Value, rc.Output.Source)
	}
	if rc.BaseDir.Value != "/flag/dir" || rc.BaseDir.Source != SourceFlag {
		t.Errorf("Flag should override project: BaseDir = (%v, %v)", rc.BaseDir.Value, rc.BaseDir.Source)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceFlag {
		t.Errorf("Flag should override project: Verbose = (%v, %v)", rc.Verbose.Value, rc.Verbose.Source)
	}
}

func TestResolve_EnvOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
base_dir: /project/base
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTOPILOT_CONFIG", configPath)
	t.Setenv("AUTOPILOT_OUTPUT", "csv")
	t.Setenv("AUTOPILOT_BASE_DIR", "/env/dir")
	t.Setenv("AUTOPILOT_VERBOSE", "true")

	rc := Resolve("", "", false)

	if rc.Output.Value != "csv" || rc.Output.Source != SourceEnv {
		t.Errorf("Env should override project: Output = (%v, %v)", rc.Output.Value, rc.Output.Source)
	}
	if rc.BaseDir.Value != "/env/dir" || rc.BaseDir.Source != SourceEnv {
		t.Errorf("Env should override project: BaseDir = (%v, %v)", rc.BaseDir.Value, rc.BaseDir.Source)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceEnv {
		t.Errorf("Env should override project: Verbose = (%v, %v)", rc.Verbose.Value, rc.Verbose.Source)
	}
}

func TestLoad_WithFlagOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	for _, key := range []string{"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE"} {
		t.Setenv(key, "")
	}

	overrides := &Config{
		Output:  "json",
		BaseDir: "/flag/base",
		Verbose: true,
	}

	cfg, err := Load(overrides)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("Load Output = %q, want %q", cfg.Output, "json")
	}
	if cfg.BaseDir != "/flag/base" {
		t.Errorf("Load BaseDir = %q, want %q", cfg.BaseDir, "/flag/base")
	}
	if !cfg.Verbose {
		t.Error("Load Verbose = false, want true")
	}
}

func TestLoad_NilOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	for _, key := range []string{"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "table" {
		t.Errorf("Load nil Output = %q, want %q", cfg.Output, "table")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_CONFIG", "")
	t.Setenv("AUTOPILOT_OUTPUT", "yaml")
	t.Setenv("AUTOPILOT_BASE_DIR", "/env/dir")
	t.Setenv("AUTOPILOT_VERBOSE", "1")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "yaml" {
		t.Errorf("Load env Output = %q, want %q", cfg.Output, "yaml")
	}
	if cfg.BaseDir != "/env/dir" {
		t.Errorf("Load env BaseDir = %q, want %q", cfg.BaseDir, "/env/dir")
	}
	if !cfg.Verbose {
		t.Error("Load env Verbose = false, want true")
	}
}

func TestLoad_WithProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
output: yaml
base_dir: /project/autopilot
thresholds:
  idle_confirmations: 7
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AUTOPILOT_CONFIG", configPath)
	for _, key := range []string{"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output != "yaml" {
		t.Errorf("Load with project config Output = %q, want %q", cfg.Output, "yaml")
	}
	if cfg.BaseDir != "/project/autopilot" {
		t.Errorf("Load with project config BaseDir = %q, want %q", cfg.BaseDir, "/project/autopilot")
	}
	if cfg.Thresholds.IdleConfirmations != 7 {
		t.Errorf("Load with project config Thresholds.IdleConfirmations = %d, want %d", cfg.Thresholds.IdleConfirmations, 7)
	}
}

func TestLoad_WithHomeConfig(t *testing.T) {
	homePath := homeConfigPath()
	if homePath == "" {
		t.Skip("cannot determine home config path")
	}

	if err := os.MkdirAll(filepath.Dir(homePath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	origData, origErr := os.ReadFile(homePath)
	existed := origErr == nil

	content := `
output: markdown
base_dir: /home-base
verbose: true
commands:
  tmux: home-tmux
  git: home-git
  runtime: home-claude
`
	if err := os.WriteFile(homePath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() {
		if existed {
			_ = os.WriteFile(homePath, origData, 0644)
		} else {
			_ = os.Remove(homePath)
		}
	})

	t.Setenv("AUTOPILOT_CONFIG", "/nonexistent/project.yaml")
	for _, key := range []string{
		"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE",
		"AUTOPILOT_TMUX_COMMAND", "AUTOPILOT_GIT_COMMAND", "AUTOPILOT_RUNTIME_COMMAND",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Output != "markdown" {
		t.Errorf("Load with home config: Output = %q, want %q", cfg.Output, "markdown")
	}
	if cfg.BaseDir != "/home-base" {
		t.Errorf("Load with home config: BaseDir = %q, want %q", cfg.BaseDir, "/home-base")
	}
	if !cfg.Verbose {
		t.Error("Load with home config: Verbose = false, want true")
	}
	if cfg.Commands.Tmux != "home-tmux" {
		t.Errorf("Load with home config: Commands.Tmux = %q, want %q", cfg.Commands.Tmux, "home-tmux")
	}
}

func TestResolve_WithHomeConfig(t *testing.T) {
	homePath := homeConfigPath()
	if homePath == "" {
		t.Skip("cannot determine home config path")
	}

	if err := os.MkdirAll(filepath.Dir(homePath), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	origData, origErr := os.ReadFile(homePath)
	existed := origErr == nil

	content := `
output: markdown
base_dir: /home-resolve
verbose: true
commands:
  tmux: home-tmux
  git: home-git
  runtime: home-runtime
`
	if err := os.WriteFile(homePath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Cleanup(func() {
		if existed {
			_ = os.WriteFile(homePath, origData, 0644)
		} else {
			_ = os.Remove(homePath)
		}
	})

	t.Setenv("AUTOPILOT_CONFIG", "/nonexistent/project.yaml")
	for _, key := range []string{
		"AUTOPILOT_OUTPUT", "AUTOPILOT_BASE_DIR", "AUTOPILOT_VERBOSE",
		"AUTOPILOT_TMUX_COMMAND", "AUTOPILOT_GIT_COMMAND", "AUTOPILOT_RUNTIME_COMMAND",
	} {
		t.Setenv(key, "")
	}

	rc := Resolve("", "", false)

	if rc.Output.Value != "markdown" || rc.Output.Source != SourceHome {
		t.Errorf("Resolve with home config: Output = (%v, %v), want (markdown, %v)",
			rc.Output.Value, rc.Output.Source, SourceHome)
	}
	if rc.BaseDir.Value != "/home-resolve" || rc.BaseDir.Source != SourceHome {
		t.Errorf("Resolve with home config: BaseDir = (%v, %v), want (/home-resolve, %v)",
			rc.BaseDir.Value, rc.BaseDir.Source, SourceHome)
	}
	if rc.Verbose.Value != true || rc.Verbose.Source != SourceHome {
		t.Errorf("Resolve with home config: Verbose = (%v, %v), want (true, %v)",
			rc.Verbose.Value, rc.Verbose.Source, SourceHome)
	}
	if rc.TmuxCommand.Value != "home-tmux" || rc.TmuxCommand.Source != SourceHome {
		t.Errorf("Resolve with home config: TmuxCommand = (%v, %v), want (home-tmux, %v)",
			rc.TmuxCommand.Value, rc.TmuxCommand.Source, SourceHome)
	}
}

// --- Benchmarks ---

func BenchmarkDefault(b *testing.B) {
	for range b.N {
		Default()
	}
}

func BenchmarkMerge(b *testing.B) {
	base := Default()
	overlay := &Config{
		Output:  "json",
		BaseDir: "/tmp/bench",
		Verbose: true,
	}
	b.ResetTimer()
	for range b.N {
		dst := *base // copy
		merge(&dst, overlay)
	}
}
