package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquire_FirstCallerWins(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nudge-proj.lock.d")
	l, err := Acquire(dir, 60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("lock dir should exist: %v", err)
	}
}

func TestAcquire_SecondCallerSkipsWhileFresh(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nudge-proj.lock.d")
	l, err := Acquire(dir, 60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	if _, err := Acquire(dir, 60); err != ErrNotAcquired {
		t.Fatalf("want ErrNotAcquired, got %v", err)
	}
}

func TestAcquire_ReclaimsStaleLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nudge-proj.lock.d")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	l, err := Acquire(dir, 60)
	if err != nil {
		t.Fatalf("want stale lock to be reclaimed, got: %v", err)
	}
	defer l.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "injector-w.lock.d")
	l, err := Acquire(dir, 10)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got: %v", err)
	}
}

func TestRelease_NilLockIsNoop(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Fatalf("Release on nil lock should be a no-op: %v", err)
	}
}

func TestAcquire_AfterReleaseSucceeds(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ack-check.lock.d")
	l1, err := Acquire(dir, 120)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	l2, err := Acquire(dir, 120)
	if err != nil {
		t.Fatalf("Acquire after release should succeed: %v", err)
	}
	defer l2.Release()
}

func TestAcquireGlobal_FirstCallerWins(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "supervisor.lock.d")
	g, err := AcquireGlobal(dir)
	if err != nil {
		t.Fatalf("AcquireGlobal: %v", err)
	}
	defer g.Release()

	pidRaw, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		t.Fatalf("pid file should be written: %v", err)
	}
	if len(pidRaw) == 0 {
		t.Fatal("pid file should be non-empty")
	}
}

func TestAcquireGlobal_SecondCallerBlockedWhileHolderAlive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "supervisor.lock.d")
	g, err := AcquireGlobal(dir)
	if err != nil {
		t.Fatalf("AcquireGlobal: %v", err)
	}
	defer g.Release()

	// Our own PID is alive for the duration of the test, so a second
	// acquire attempt must be refused regardless of directory mtime.
	old := time.Now().Add(-24 * time.Hour)
	os.Chtimes(dir, old, old)

	if _, err := AcquireGlobal(dir); err != ErrNotAcquired {
		t.Fatalf("want ErrNotAcquired while holder is alive, got %v", err)
	}
}

func TestAcquireGlobal_ReclaimsWhenHolderPIDGone(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "supervisor.lock.d")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// A PID essentially guaranteed not to be running in the test sandbox.
	if err := os.WriteFile(filepath.Join(dir, pidFile), []byte("999999999"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, startSigFile), []byte("999999999:1"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g, err := AcquireGlobal(dir)
	if err != nil {
		t.Fatalf("want reclaim when holder PID is gone, got: %v", err)
	}
	defer g.Release()
}

func TestAcquireGlobal_ReclaimsOnCorruptMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "supervisor.lock.d")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// No pid/start_signature files at all: unreadable metadata.
	g, err := AcquireGlobal(dir)
	if err != nil {
		t.Fatalf("want reclaim on unreadable metadata, got: %v", err)
	}
	defer g.Release()
}

func TestGlobalRelease_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "supervisor.lock.d")
	g, err := AcquireGlobal(dir)
	if err != nil {
		t.Fatalf("AcquireGlobal: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}
}
