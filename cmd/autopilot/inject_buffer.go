package main

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// injectionBufferWriter persists text to a uniquely-named temp file for the
// injector's chunked/buffer-paste strategies, returning a cleanup that
// removes it once the injector is done with it.
func injectionBufferWriter(text string) (string, func(), error) {
	path := filepath.Join(os.TempDir(), "autopilot-inject-"+uuid.NewString()+".txt")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}
