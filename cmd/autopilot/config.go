package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/watchloop/autopilot/embedded"
	"github.com/watchloop/autopilot/internal/config"
)

var configShow bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and manage autopilot configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (AUTOPILOT_*)
  3. Project config (.autopilot/config.yaml)
  4. Home config (~/.autopilot/config.yaml)
  5. Defaults

Examples:
  autopilot config --show          # Show resolved configuration
  autopilot config init            # Write a default ~/.autopilot/config.yaml`,
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config.yaml to the home config path",
	Long: `init writes the embedded default config scaffold to
~/.autopilot/config.yaml, the same values config.Default() falls back to
when no file is present. It refuses to overwrite an existing file.`,
	RunE: runConfigInit,
}

func init() {
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(GetOutput(), "", GetVerbose())

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("autopilot configuration")
	fmt.Println("========================")
	fmt.Println()

	home, _ := os.UserHomeDir()
	homeConfig := filepath.Join(home, ".autopilot", "config.yaml")
	if _, err := os.Stat(homeConfig); err == nil {
		fmt.Printf("  found   home:    %s\n", homeConfig)
	} else {
		fmt.Printf("  absent  home:    %s\n", homeConfig)
	}
	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, ".autopilot", "config.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  found   project: %s\n", projectConfig)
	} else {
		fmt.Printf("  absent  project: %s\n", projectConfig)
	}

	fmt.Println()
	fmt.Println("resolved values:")
	fmt.Printf("  output:         %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Printf("  base_dir:       %v  (from %s)\n", resolved.BaseDir.Value, resolved.BaseDir.Source)
	fmt.Printf("  verbose:        %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)
	fmt.Printf("  session_name:   %v  (from %s)\n", resolved.SessionName.Value, resolved.SessionName.Source)
	fmt.Printf("  tmux_command:   %v  (from %s)\n", resolved.TmuxCommand.Value, resolved.TmuxCommand.Source)
	fmt.Printf("  git_command:    %v  (from %s)\n", resolved.GitCommand.Value, resolved.GitCommand.Source)
	fmt.Printf("  runtime_command: %v  (from %s)\n", resolved.RuntimeCmd.Value, resolved.RuntimeCmd.Source)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".autopilot")
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing config: %s", path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, embedded.DefaultConfigYAML, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
