// Package embedded provides the default config scaffold and nudge templates
// compiled into the autopilot binary. The templates are the fallback when a
// project sets no default_nudge; the config scaffold is what `autopilot
// config init` writes out for a new install (config.Load itself starts from
// config.Default(), not from this file).
package embedded

import "embed"

// DefaultConfigYAML is the commented config.yaml scaffold written by
// `autopilot config init` when no home or project config file exists yet.
//
//go:embed config.default.yaml
var DefaultConfigYAML []byte

// Templates holds the built-in nudge templates (default.tmpl, compact.tmpl),
// rendered via internal/rules.RenderNudge when a project declares no
// DefaultNudge override.
//
//go:embed all:templates
var Templates embed.FS
