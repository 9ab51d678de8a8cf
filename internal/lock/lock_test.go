package lock

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMutexMap_LockUnlock(t *testing.T) {
	m := NewMutexMap()

	m.Lock("features")
	m.Unlock("features")

	// Should be able to lock again
	m.Lock("features")
	m.Unlock("features")
}

func TestMutexMap_DifferentKeys(t *testing.T) {
	m := NewMutexMap()

	done := make(chan struct{})

	m.Lock("features")
	go func() {
		// backlog should not be blocked by features
		m.Lock("backlog")
		m.Unlock("backlog")
		close(done)
	}()

	<-done
	m.Unlock("features")
}

func TestMutexMap_Concurrent(t *testing.T) {
	m := NewMutexMap()
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("shared")
			atomic.AddInt64(&counter, 1)
			m.Unlock("shared")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected counter=100, got %d", counter)
	}
}

func TestSessionLock_TryLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.lock")

	sl := NewSessionLock(path)
	if err := sl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	// Lock file records this PID.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(content), "\n") {
		t.Errorf("expected PID line in lock file, got %q", content)
	}

	if err := sl.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed after unlock")
	}
}

func TestSessionLock_ExclusiveWithinProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.lock")

	first := NewSessionLock(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer first.Unlock()

	// A second lock on the same path must fail while the first is held.
	// flock is per-fd, so a fresh open contends properly.
	second := NewSessionLock(path)
	if err := second.TryLock(); err == nil {
		second.Unlock()
		t.Fatal("second TryLock succeeded, expected contention error")
	}
}

func TestSessionLock_UnlockWithoutLock(t *testing.T) {
	sl := NewSessionLock(filepath.Join(t.TempDir(), "session.lock"))
	if err := sl.Unlock(); err != nil {
		t.Errorf("Unlock on unheld lock should be a no-op, got %v", err)
	}
}
