package workerpool

import (
	"testing"
	"time"
)

func TestNewDefaultsPoolSize(t *testing.T) {
	pool, err := New(0)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Release()

	if got := pool.Cap(); got != defaultSize {
		t.Fatalf("expected default capacity %d, got %d", defaultSize, got)
	}
}

func TestSubmitRunsTask(t *testing.T) {
	pool, err := New(2)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Release()

	done := make(chan struct{})
	if err := pool.Submit(func() { close(done) }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
}

func TestSubmitRejectsWhenAllWorkersBusy(t *testing.T) {
	pool, err := New(1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Release()

	started := make(chan struct{})
	release := make(chan struct{})
	if err := pool.Submit(func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started

	if err := pool.Submit(func() {}); err == nil {
		t.Fatalf("expected rejection while the only worker is busy")
	}
	if got := pool.Running(); got != 1 {
		t.Fatalf("expected 1 running worker, got %d", got)
	}
	close(release)
}
