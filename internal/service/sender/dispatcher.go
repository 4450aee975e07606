package sender

import (
	"context"
	"sync"
	"sync/atomic"

	"docdetect/internal/dto"
	"docdetect/internal/logger"
)

// DispatchStats counts send outcomes.
type DispatchStats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	InFlight int64  `json:"in_flight"`
}

// Dispatcher runs every send on its own goroutine so the pipeline never waits
// on the network. Failures are logged and not retried.
type Dispatcher struct {
	sender Sender
	logger *logger.Logger

	wg       sync.WaitGroup
	sent     atomic.Uint64
	failed   atomic.Uint64
	inFlight atomic.Int64
}

// NewDispatcher creates a dispatcher sending through sender.
func NewDispatcher(sender Sender, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger}
}

// Dispatch starts sending capture and returns immediately. Cancelling ctx
// after the call does not abort the send; Wait joins it.
func (d *Dispatcher) Dispatch(ctx context.Context, capture dto.CapturedImage) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)

		if err := d.sender.Send(ctx, capture); err != nil {
			d.failed.Add(1)
			d.logger.Error("Failed to send capture %s (%s_%d): %v", capture.ID, capture.Label, capture.RegionIndex, err)
			return
		}
		d.sent.Add(1)
		d.logger.Debug("Sent capture %s: %dx%d, %d bytes", capture.ID, capture.Width, capture.Height, len(capture.Data))
	}()
}

// Wait blocks until every dispatched send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stats returns the send counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		InFlight: d.inFlight.Load(),
	}
}
