package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is one unit of work submitted to the async worker: a function
// to run, optionally after a delay. This is the Go shape of
// original_source/src/lifecycle.c's AsyncAction struct
// ({function, parameter, delayMillis}); the function closes over its
// own parameter instead of taking one, since Go has closures and C
// does not. ID correlates one submitted action with its log line when
// the worker runs it, since nothing else about a closure is printable.
type Action struct {
	ID    string
	Fn    func()
	Delay time.Duration
}

// queue is an unbounded FIFO of pending actions. lifecycleAsync never
// blocks the submitting goroutine regardless of backlog size
// (spec.md §5), so push only ever appends and signals; it never
// applies backpressure the way a bounded buffered channel would.
// notify is a capacity-1 wakeup the worker selects on so a freshly
// pushed action runs immediately rather than waiting out idleSleep.
type queue struct {
	mu      sync.Mutex
	actions []Action
	notify  chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(a Action) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest action, or reports ok=false if
// the queue is empty.
func (q *queue) pop() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return Action{}, false
	}
	a := q.actions[0]
	q.actions = q.actions[1:]
	return a, true
}
