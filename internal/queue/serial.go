// Package queue provides the serial task queues contexts are bound to.
// Each queue is one worker goroutine executing submitted functions in
// submission order.
package queue

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Serial is an unbounded FIFO task queue with a single worker.
type Serial struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	done   chan struct{}
	worker atomic.Uint64
}

// NewSerial starts a queue and its worker goroutine.
func NewSerial(name string) *Serial {
	s := &Serial{name: name, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Name identifies the queue in diagnostics.
func (s *Serial) Name() string { return s.name }

func (s *Serial) run() {
	s.worker.Store(goid())
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.tasks) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		fn()
	}
}

// Async enqueues fn and returns immediately. It reports false when the
// queue is already closed and the task was dropped.
func (s *Serial) Async(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.tasks = append(s.tasks, fn)
	s.cond.Signal()
	return true
}

// Sync runs fn on the queue and waits for it. When called from the
// queue's own worker it runs fn inline, so queue-affine code can call
// back into itself without deadlocking. On a closed queue fn runs
// inline on the caller; that only happens during teardown.
func (s *Serial) Sync(fn func()) {
	if s.OnWorker() {
		fn()
		return
	}
	ch := make(chan struct{})
	if !s.Async(func() {
		defer close(ch)
		fn()
	}) {
		fn()
		return
	}
	<-ch
}

// OnWorker reports whether the caller is the queue's worker goroutine.
func (s *Serial) OnWorker() bool {
	return s.worker.Load() == goid()
}

// Close drains queued tasks and stops the worker. Safe to call more
// than once. When called from the worker itself it does not wait.
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if !s.OnWorker() {
			<-s.done
		}
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	if !s.OnWorker() {
		<-s.done
	}
}

// goid returns the current goroutine id. The runtime offers no API for
// this; parsing the stack header is the standard workaround and is only
// used to detect reentrant Sync calls.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
