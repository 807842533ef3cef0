// Package safety documents the threat model and defensive patterns that keep
// the supervisor's autonomous actions bounded and reversible.
//
// autopilot injects keystrokes into live tmux panes and shells out to git on
// a fixed schedule with no human confirming each step. The safety package
// centralizes the threats this implies and the mitigations each collaborator
// applies.
//
// # Threat Model
//
// T1 - Pane Membership Spoofing: a window's pane_current_command reports the
// shell, not the assistant process running inside it; a window that looks
// like it hosts the assistant may in fact host an unrelated shell session
// (the prior assistant exited, the user ran something else). Injecting into
// such a pane sends keystrokes to the wrong program. Mitigation: the injector
// walks the pane's process tree to find a live descendant matching the
// configured assistant command before every send, and refuses the send
// entirely (SKIP, not best-effort) when no such descendant exists.
//
// T2 - Window-Name Path Traversal: window names come from tmux and are used
// to build state-store file paths (state/<window>.json, locks/<window>.lock.d,
// etc.). An adversarial or accidental window name containing "../" or a path
// separator could escape the base directory. Mitigation: window names are
// sanitized to a safe character set before any path join; anything else is
// rejected at the point of first use, not deep inside the state store.
//
// T3 - Lock Mis-Reclamation: stale-lock reclamation lets the supervisor
// recover from a crashed prior instance, but reclaiming a lock that is still
// legitimately held — because a PID was reused by an unrelated process —
// would let two supervisors inject into the same panes concurrently. This is
// why only the global supervisor lock carries PID *and* process-start-time
// verification; per-window and per-action locks use plain staleness because
// their blast radius is one window, not the whole fleet.
//
// T4 - Stale-Trigger Force-Consume Window: the review consumer force-clears
// a fresh review-in-progress flag only when the sink output file is already
// non-empty, and otherwise waits for the next tick rather than assuming
// failure. A consumer that force-cleared on a timeout alone could race a
// reviewer still writing its output and silently drop partial results.
//
// # Design Principles
//
// Fail closed on ambiguous pane state: the injector's default when it cannot
// verify which process owns a pane is to skip the action, not to proceed
// optimistically — a missed nudge is recoverable next tick, a misdirected
// keystroke is not.
//
// Locks expire; the global lock verifies. Every lock directory carries a
// staleness TTL so a crashed holder cannot wedge the system forever, but the
// one lock whose mis-reclamation would let two supervisors run at once adds
// the extra PID+start-signature check.
//
// Atomic-rename discipline everywhere. Every state-store write goes
// temp-file-same-directory, fsync, rename — readers never observe a partial
// write regardless of when they read.
package safety
