package msgsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the polling cadence used when none is configured.
const DefaultPollInterval = time.Second

// PollFunc performs one poll. It must read its cursor when called, not when
// the poller was started, and should return once ctx is done.
type PollFunc func(ctx context.Context)

// Poller runs a PollFunc on a fixed interval until stopped. Ticks fire
// independently of the previous poll, but a tick is skipped while a poll is
// still outstanding so at most one request is in flight.
type Poller struct {
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Bool
	skipped  atomic.Int64
	stopOnce sync.Once
}

// StartPoller begins polling with fn every interval. A non-positive
// interval uses DefaultPollInterval. The first poll happens after one
// interval.
func StartPoller(ctx context.Context, interval time.Duration, fn PollFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{cancel: cancel}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx, fn)
			}
		}
	}()
	return p
}

func (p *Poller) tick(ctx context.Context, fn PollFunc) {
	if !p.inflight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Store(false)
		fn(ctx)
	}()
}

// Skipped returns how many ticks were dropped because a poll was outstanding.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

// Cancel stops further ticks without waiting. Unlike Stop it may be called
// from inside the PollFunc.
func (p *Poller) Cancel() {
	p.stopOnce.Do(func() {
		p.cancel()
	})
}

// Stop cancels the poller and waits for the loop and any outstanding poll to
// return. It is safe to call more than once.
func (p *Poller) Stop() {
	p.Cancel()
	p.wg.Wait()
}
