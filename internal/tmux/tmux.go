// Package tmux wraps the terminal-multiplexer invocations the classifier
// and injector depend on. Every call goes through exec.CommandContext with
// an explicit argument list -- never through a shell -- and a hard timeout,
// grounded on the teacher's own tmux/git call-site style
// (exec.CommandContext(ctx, "tmux", ...), no shell interpolation).
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 3 * time.Second

// Client is the tmux collaborator. Command defaults to "tmux" but is
// configurable (internal/config.CommandsConfig.Tmux) so tests and
// non-standard installs can point elsewhere.
type Client struct {
	Command string
	Timeout time.Duration
}

// New returns a Client using command (empty defaults to "tmux").
func New(command string) *Client {
	if command == "" {
		command = "tmux"
	}
	return &Client{Command: command, Timeout: defaultTimeout}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// SessionHasWindow reports whether session exists and contains window.
func (c *Client) SessionHasWindow(session, window string) (bool, error) {
	out, err := c.run(context.Background(), "list-windows", "-t", session, "-F", "#{window_name}")
	if err != nil {
		// A missing session surfaces as a non-zero tmux exit; treat it as
		// "not present" rather than propagating the error, since the
		// classifier's absent branch needs a clean bool.
		return false, nil
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == window {
			return true, nil
		}
	}
	return false, nil
}

// PanePID returns the PID of the shell process owning window's active pane.
func (c *Client) PanePID(session, window string) (int, error) {
	target := session + ":" + window
	out, err := c.run(context.Background(), "list-panes", "-t", target, "-F", "#{pane_pid}")
	if err != nil {
		return 0, err
	}
	first := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	return strconv.Atoi(first)
}

// CapturePane returns the last n lines of window's active pane.
func (c *Client) CapturePane(session, window string, lines int) (string, error) {
	target := session + ":" + window
	startLine := "-" + strconv.Itoa(lines)
	return c.run(context.Background(), "capture-pane", "-p", "-t", target, "-S", startLine)
}

// SendKeys sends literal keys to window followed by an optional submit. Use
// enter=true to also send the Enter key as a separate send-keys call, which
// tmux interprets as a keypress rather than literal text.
func (c *Client) SendKeys(ctx context.Context, session, window, text string, enter bool) error {
	target := session + ":" + window
	if _, err := c.run(ctx, "send-keys", "-t", target, "-l", text); err != nil {
		return err
	}
	if enter {
		if _, err := c.run(ctx, "send-keys", "-t", target, "Enter"); err != nil {
			return err
		}
	}
	return nil
}

// LoadBuffer loads the contents of filePath into a named tmux paste buffer.
func (c *Client) LoadBuffer(ctx context.Context, bufferName, filePath string) error {
	_, err := c.run(ctx, "load-buffer", "-b", bufferName, filePath)
	return err
}

// PasteBuffer pastes bufferName into window using bracketed-paste mode (-p)
// so the assistant's TUI receives it as a single paste event, not individual
// keystrokes.
func (c *Client) PasteBuffer(ctx context.Context, bufferName, session, window string) error {
	target := session + ":" + window
	_, err := c.run(ctx, "paste-buffer", "-p", "-b", bufferName, "-t", target)
	return err
}

// DeleteBuffer removes a named paste buffer.
func (c *Client) DeleteBuffer(ctx context.Context, bufferName string) error {
	_, err := c.run(ctx, "delete-buffer", "-b", bufferName)
	return err
}
