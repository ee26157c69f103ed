// Package orchestrator drives the two background loops
// internal/session needs but never starts itself (spec.md §5): a
// single-consumer FIFO of deferred actions, and a network poll ticker
// that checks the session for a readable frame twice a second. Both
// loops are grounded on original_source/src/lifecycle.c's
// asyncActionsThreadLooper and netUpdateLopper, translated from SDL
// threads/timers into goroutines supervised by an errgroup.Group.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// NetPoller is the subset of *session.Session the network poll loop
// drives. A narrow interface instead of the concrete type keeps this
// package's tests free of a real socket.
type NetPoller interface {
	PollOnce(timeout time.Duration) (bool, error)
}

// netPollPeriod mirrors original_source/src/lifecycle.c's
// NET_UPDATE_PERIOD (1000/2 ms): the network is checked at most twice
// a second.
const netPollPeriod = 500 * time.Millisecond

// idleSleep is how long the async worker waits before re-checking an
// empty queue, mirroring lifecycleSleep(100) in
// asyncActionsThreadLooper.
const idleSleep = 100 * time.Millisecond

// Orchestrator owns the async action worker and the network poll loop
// for one session. The zero value is not usable; construct one with
// New.
type Orchestrator struct {
	poller NetPoller
	logger *slog.Logger
	queue  *queue

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs an Orchestrator driving poller. logger may be nil, in
// which case slog.Default() is used.
func New(poller NetPoller, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{poller: poller, logger: logger, queue: newQueue()}
}

// Async enqueues fn to run on the worker goroutine, after delay if
// nonzero. It never blocks, regardless of how much work is already
// queued (spec.md §5).
func (o *Orchestrator) Async(fn func(), delay time.Duration) {
	o.queue.push(Action{Fn: fn, Delay: delay})
}

// Start launches the async worker and network poll goroutines. It
// returns immediately; call Stop to shut them down.
func (o *Orchestrator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	o.group = group

	group.Go(func() error {
		o.runAsyncWorker(gctx)
		return nil
	})
	group.Go(func() error {
		o.runNetPoll(gctx)
		return nil
	})
}

// Stop cancels both loops and waits for them to exit.
func (o *Orchestrator) Stop() error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	return o.group.Wait()
}

func (o *Orchestrator) runAsyncWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		action, ok := o.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-o.queue.notify:
			case <-time.After(idleSleep):
			}
			continue
		}
		if action.Delay > 0 {
			sleep(ctx, action.Delay)
		}
		if ctx.Err() != nil {
			return
		}
		if action.Fn != nil {
			o.logger.Debug("running async action", "action_id", action.ID)
			action.Fn()
		}
	}
}

func (o *Orchestrator) runNetPoll(ctx context.Context) {
	ticker := time.NewTicker(netPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.poller.PollOnce(netPollPeriod); err != nil {
				o.logger.Warn("network poll failed", "error", err)
			}
		}
	}
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
