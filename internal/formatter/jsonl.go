package formatter

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

// AppendJSONL marshals v and appends it as one line to the file at path,
// creating parent directories as needed. Each call opens, writes, and
// closes the file so callers don't need to hold it open across a tick.
func AppendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// EachJSONLLine scans the JSONL file at path, calling fn with the raw bytes
// of each non-empty line. Malformed lines are skipped by the caller's fn, not
// here. A missing file is treated as zero lines, not an error.
func EachJSONLLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// JSONLFormatter writes arbitrary JSON-marshalable values as JSON Lines,
// one value per Format call, to a writer it doesn't own (no file lifecycle).
type JSONLFormatter struct {
	Pretty bool
}

// NewJSONLFormatter creates a new JSONL formatter.
func NewJSONLFormatter() *JSONLFormatter {
	return &JSONLFormatter{}
}

// Format writes v as a single JSON line to w.
func (jf *JSONLFormatter) Format(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if jf.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// Extension returns the file extension for JSONL.
func (jf *JSONLFormatter) Extension() string {
	return ".jsonl"
}
