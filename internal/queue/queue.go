// Package queue implements the task-queue collaborator (spec §6.4): a
// line-oriented marker file per project tracking a small ordered backlog
// with four markers -- "[ ]" pending, "[→]" in progress, "[x]" done, "[!]"
// blocked. There is no teacher analog for this format; the marker vocabulary
// and the next/start/done/count operations are taken directly from the
// collaborator-interface list.
package queue

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	markerPending = "[ ]"
	markerStarted = "[→]"
	markerDone    = "[x]"
	markerBlocked = "[!]"
)

// markers lists every recognized marker in priority order; matched via
// strings.HasPrefix since they aren't all the same byte width ("[→]" is a
// multi-byte rune, unlike the ASCII "[ ]"/"[x]"/"[!]").
var markers = []string{markerPending, markerStarted, markerDone, markerBlocked}

// Item is one line of the queue file: a marker plus its free-text body.
type Item struct {
	Marker string
	Text   string
}

// Queue wraps a single marker file on disk.
type Queue struct {
	Path string
}

// New returns a Queue bound to path; the file need not exist yet.
func New(path string) *Queue {
	return &Queue{Path: path}
}

// Next returns the first pending ("[ ]") item, or ok=false if none exists.
func (q *Queue) Next() (item Item, ok bool, err error) {
	items, err := q.readAll()
	if err != nil {
		return Item{}, false, err
	}
	for _, it := range items {
		if it.Marker == markerPending {
			return it, true, nil
		}
	}
	return Item{}, false, nil
}

// Start marks the first pending item in progress and returns its text.
// It is a no-op returning ok=false when no pending item exists.
func (q *Queue) Start() (text string, ok bool, err error) {
	items, err := q.readAll()
	if err != nil {
		return "", false, err
	}
	for i := range items {
		if items[i].Marker == markerPending {
			items[i].Marker = markerStarted
			if err := q.writeAll(items); err != nil {
				return "", false, err
			}
			return items[i].Text, true, nil
		}
	}
	return "", false, nil
}

// Done marks the first in-progress item done, stamping hash into its text
// so the queue file doubles as a lightweight audit trail. ok is false when no
// in-progress item exists (nothing to mark done).
func (q *Queue) Done(hash string) (ok bool, err error) {
	items, err := q.readAll()
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].Marker == markerStarted {
			items[i].Marker = markerDone
			if hash != "" {
				items[i].Text = fmt.Sprintf("%s (%s)", items[i].Text, hash)
			}
			return true, q.writeAll(items)
		}
	}
	return false, nil
}

// Block marks the first in-progress item blocked with a reason appended.
func (q *Queue) Block(reason string) (ok bool, err error) {
	items, err := q.readAll()
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].Marker == markerStarted {
			items[i].Marker = markerBlocked
			if reason != "" {
				items[i].Text = fmt.Sprintf("%s -- %s", items[i].Text, reason)
			}
			return true, q.writeAll(items)
		}
	}
	return false, nil
}

// Count returns the number of items matching marker, or every item if
// marker is empty.
func (q *Queue) Count(marker string) (int, error) {
	items, err := q.readAll()
	if err != nil {
		return 0, err
	}
	if marker == "" {
		return len(items), nil
	}
	n := 0
	for _, it := range items {
		if it.Marker == marker {
			n++
		}
	}
	return n, nil
}

// Push appends a new pending item to the end of the queue.
func (q *Queue) Push(text string) error {
	items, err := q.readAll()
	if err != nil {
		return err
	}
	items = append(items, Item{Marker: markerPending, Text: text})
	return q.writeAll(items)
}

func (q *Queue) readAll() ([]Item, error) {
	f, err := os.Open(q.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []Item
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		matched := false
		for _, marker := range markers {
			if strings.HasPrefix(line, marker) {
				items = append(items, Item{Marker: marker, Text: strings.TrimSpace(line[len(marker):])})
				matched = true
				break
			}
		}
		if !matched {
			// Unrecognized line (stray comment, blank marker); keep it as a
			// pending item rather than silently dropping queue content.
			items = append(items, Item{Marker: markerPending, Text: strings.TrimSpace(line)})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// writeAll persists items atomically: write-temp-then-rename in the same
// directory, matching the state store's crash-safety discipline (I3).
func (q *Queue) writeAll(items []Item) error {
	dir := filepath.Dir(q.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.Marker)
		b.WriteByte(' ')
		b.WriteString(it.Text)
		b.WriteByte('\n')
	}

	tmp := filepath.Join(dir, filepath.Base(q.Path)+".tmp-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, q.Path)
}
