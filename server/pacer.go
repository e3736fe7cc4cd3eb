package neurales

import (
	"context"
	"time"
)

// Pacer blocks between chunk emissions.
// Wait returns ctx.Err() if the context ends first.
// Reset restarts the cadence from now, dropping any tick that fired meanwhile.
type Pacer interface {
	Wait(ctx context.Context) error
	Reset()
	Stop()
}

// TickerPacer spaces waits one interval apart on a wall-clock ticker,
// so at most one chunk goes out per tick regardless of how long scoring took.
type TickerPacer struct {
	Interval time.Duration
	Ticker   *time.Ticker
}

func NewTickerPacer(interval time.Duration) *TickerPacer {
	return &TickerPacer{Interval: interval}
}

func (tp *TickerPacer) Wait(ctx context.Context) error {
	// Start on first use so the first chunk is not delayed by setup time
	if tp.Ticker == nil {
		tp.Ticker = time.NewTicker(tp.Interval)
	}
	select {
	case <-tp.Ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset is called after a pause so the next wait is a full interval.
// A tick that landed while paused stays buffered in the channel and is drained here.
func (tp *TickerPacer) Reset() {
	if tp.Ticker == nil {
		return
	}
	tp.Ticker.Reset(tp.Interval)
	select {
	case <-tp.Ticker.C:
	default:
	}
}

func (tp *TickerPacer) Stop() {
	if tp.Ticker != nil {
		tp.Ticker.Stop()
	}
}

// ImmediatePacer never waits. Used for offline scoring and tests.
type ImmediatePacer struct{}

func (ImmediatePacer) Wait(ctx context.Context) error { return ctx.Err() }
func (ImmediatePacer) Reset()                         {}
func (ImmediatePacer) Stop()                          {}
