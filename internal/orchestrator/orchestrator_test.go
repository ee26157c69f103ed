package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePoller struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePoller) PollOnce(time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return true, p.err
}

func (p *fakePoller) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestAsyncRunsQueuedActionsInOrder(t *testing.T) {
	o := New(&fakePoller{}, nil)
	o.Start()
	defer o.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		o.Async(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("order = %v, want [0 1 2]", order)
	}
}

func TestAsyncHonorsDelay(t *testing.T) {
	o := New(&fakePoller{}, nil)
	o.Start()
	defer o.Stop()

	start := time.Now()
	done := make(chan struct{})
	o.Async(func() { close(done) }, 50*time.Millisecond)
	<-done
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("action ran after %v, want >= 50ms", elapsed)
	}
}

func TestStopWaitsForLoopsToExit(t *testing.T) {
	o := New(&fakePoller{}, nil)
	o.Start()
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopOnUnstartedOrchestratorIsNoop(t *testing.T) {
	o := New(&fakePoller{}, nil)
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAsyncDoesNotBlockWhileManyActionsQueued(t *testing.T) {
	o := New(&fakePoller{}, nil)
	// Deliberately not started: Async must still accept work without
	// blocking (spec.md §5's "never blocks the caller").
	var calls int32
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			o.Async(func() { atomic.AddInt32(&calls, 1) }, 0)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Async blocked while queue grew unboundedly")
	}
}
