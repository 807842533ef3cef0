// Package logging wires the process-wide structured logger. Every state
// transition, rule decision, action, and ack outcome the supervisor produces
// goes through here so each becomes exactly one structured log line, per
// spec §6.5.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. verbose lowers the level to debug;
// otherwise info. w is the destination (the rotated main log file in
// production, os.Stderr for CLI subcommands that don't run the main loop).
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewConsole builds a human-readable logger for interactive CLI use
// (status, doctor, classify) where structured JSON would just be noise.
func NewConsole(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// Decision logs one rule-engine decision trace: the rule name, the guard
// verdicts evaluated in order, and the outcome (an action name or a SKIP
// reason). This is the mandatory debuggability line called out in spec §4.E.
func Decision(log zerolog.Logger, window, rule string, guardTrace []string, outcome string) {
	log.Info().
		Str("window", window).
		Str("rule", rule).
		Strs("guards", guardTrace).
		Str("outcome", outcome).
		Msg("rule decision")
}

// Transition logs a window's state transition.
func Transition(log zerolog.Logger, window, from, to string) {
	log.Info().
		Str("window", window).
		Str("from", from).
		Str("to", to).
		Msg("state transition")
}
