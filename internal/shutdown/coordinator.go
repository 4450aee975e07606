// Package shutdown coordinates graceful termination of every loop in the service.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"

	"docdetect/internal/logger"
)

// DefaultJoinTimeout bounds how long Shutdown waits for each tracked handle.
const DefaultJoinTimeout = 2 * time.Second

type closer struct {
	name string
	fn   func()
}

type handle struct {
	name string
	done chan struct{}
	wait func() // set by Track, started when the join reaches this handle
}

// Coordinator owns the service lifetime.
//
// Shutdown cancels the shared context, runs the registered closers in order and
// then joins every tracked handle with a bounded timeout each. It runs once; later
// calls (a second signal, a second failing worker) are no-ops.
type Coordinator struct {
	ctx         context.Context
	cancel      context.CancelFunc
	joinTimeout time.Duration
	logger      *logger.Logger

	mu      sync.Mutex
	closers []closer
	handles []handle
	err     error

	once sync.Once
	done chan struct{}
}

// New creates a coordinator whose context derives from parent.
func New(parent context.Context, joinTimeout time.Duration, logger *logger.Logger) *Coordinator {
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:         ctx,
		cancel:      cancel,
		joinTimeout: joinTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Context is cancelled as the first step of shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// NotifySignals triggers Shutdown on the first of the given signals.
// Further signals are ignored by Shutdown's idempotency.
func (c *Coordinator) NotifySignals(signals ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case sig := <-ch:
				c.logger.Info("Received %s, initiating graceful shutdown", sig)
				go c.Shutdown()
			case <-c.done:
				return
			}
		}
	}()
}

// OnShutdown registers fn to run after cancellation, before handles are joined.
// Closers run in registration order.
func (c *Coordinator) OnShutdown(name string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Go runs fn on a tracked goroutine. A non-nil error from fn is recorded and
// starts shutdown.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) {
	done := c.register(name)

	go func() {
		defer close(done)
		if err := fn(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("%s stopped with error: %v", name, err)
			c.setErr(err)
			go c.Shutdown()
		}
	}()
}

// Track registers an externally owned join function, such as a WaitGroup's Wait.
// wait is only called once every handle registered before it has been joined,
// so work those handles start during shutdown is still waited for.
func (c *Coordinator) Track(name string, wait func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = append(c.handles, handle{name: name, wait: wait})
}

// Shutdown stops everything. Only the first call has an effect.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		defer close(c.done)

		c.cancel()

		c.mu.Lock()
		closers := append([]closer(nil), c.closers...)
		handles := append([]handle(nil), c.handles...)
		c.mu.Unlock()

		for _, cl := range closers {
			c.logger.Debug("Closing %s", cl.name)
			cl.fn()
		}

		for _, h := range handles {
			done := h.done
			if h.wait != nil {
				done = make(chan struct{})
				go func(wait func()) {
					defer close(done)
					wait()
				}(h.wait)
			}

			select {
			case <-done:
				c.logger.Debug("%s stopped", h.name)
			case <-time.After(c.joinTimeout):
				c.logger.Warning("%s did not stop within %v", h.name, c.joinTimeout)
			}
		}

		c.logger.Info("Shutdown complete")
	})
}

// Done is closed once Shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until Shutdown has finished and returns the first worker error.
func (c *Coordinator) Wait() error {
	<-c.done
	return c.Err()
}

// Err returns the first error reported by a worker started with Go.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coordinator) register(name string) chan struct{} {
	done := make(chan struct{})
	c.mu.Lock()
	c.handles = append(c.handles, handle{name: name, done: done})
	c.mu.Unlock()
	return done
}

func (c *Coordinator) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
