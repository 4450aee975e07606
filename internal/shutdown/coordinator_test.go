package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docdetect/internal/logger"
)

func TestShutdown_OrderAndIdempotency(t *testing.T) {
	c := New(context.Background(), time.Second, logger.NewDiscard())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	c.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		record("loop exited")
		return ctx.Err()
	})
	c.OnShutdown("socket", func() { record("socket closed") })
	c.OnShutdown("queue", func() { record("queue stopped") })

	c.Shutdown()
	c.Shutdown()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done should be closed after Shutdown returns")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("Expected 3 steps exactly once, got %v", order)
	}
	if order[0] != "socket closed" || order[1] != "queue stopped" {
		t.Errorf("Closers should run in registration order, got %v", order)
	}
	if c.Err() != nil {
		t.Errorf("Cancellation must not be reported as an error, got %v", c.Err())
	}
}

func TestShutdown_BoundedJoin(t *testing.T) {
	c := New(context.Background(), 50*time.Millisecond, logger.NewDiscard())

	release := make(chan struct{})
	defer close(release)
	c.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	start := time.Now()
	c.Shutdown()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown should give up after the join timeout, took %v", elapsed)
	}
}

func TestShutdown_TrackedWaitIsJoined(t *testing.T) {
	c := New(context.Background(), time.Second, logger.NewDiscard())

	var (
		wg       sync.WaitGroup
		finished atomic.Bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-c.Context().Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}()
	c.Track("senders", wg.Wait)

	c.Shutdown()
	if !finished.Load() {
		t.Error("Shutdown returned before the tracked wait completed")
	}
}

func TestGo_ErrorTriggersShutdown(t *testing.T) {
	c := New(context.Background(), time.Second, logger.NewDiscard())
	fatal := errors.New("model failed to load")

	c.Go("pipeline", func(ctx context.Context) error {
		return fatal
	})

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Worker error did not trigger shutdown")
	}

	if err := c.Wait(); !errors.Is(err, fatal) {
		t.Errorf("Expected worker error, got %v", err)
	}
	if c.Context().Err() == nil {
		t.Error("Context should be cancelled")
	}
}

func TestShutdown_TrackedWaitStartsAfterEarlierHandles(t *testing.T) {
	c := New(context.Background(), time.Second, logger.NewDiscard())

	var (
		wg   sync.WaitGroup
		sent atomic.Bool
	)

	// The consumer finishes its last frame after cancellation and starts one more send.
	c.Go("pipeline", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(100 * time.Millisecond)
			sent.Store(true)
		}()
		return nil
	})
	c.Track("senders", wg.Wait)

	c.Shutdown()
	if !sent.Load() {
		t.Error("Shutdown returned before the send started during shutdown completed")
	}
}
