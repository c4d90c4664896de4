// Package timer provides the process-wide registry of periodic functions.
//
// Every unit that needs periodic work (buffer flushes, statistics, key
// expiry) registers through the same Registry so that shutdown can stop all
// of them with a single StopAll call.
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry tracks running timers.
type Registry struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
	nextID  uint64
	stopped bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handles: make(map[uint64]*Handle),
		logger:  logger,
	}
}

// Handle controls one registered timer.
type Handle struct {
	id       uint64
	name     string
	interval time.Duration
	reg      *Registry
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Every runs fn every interval on its own goroutine until the handle is
// stopped. Runs of the same handle never overlap.
//
// After StopAll the registry refuses new timers and returns a handle that
// is already stopped.
func (r *Registry) Every(name string, interval time.Duration, fn func()) *Handle {
	h := &Handle{
		name:     name,
		interval: interval,
		reg:      r,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	if r.stopped || interval <= 0 {
		r.mu.Unlock()
		h.once.Do(func() { close(h.stop) })
		close(h.done)
		return h
	}
	r.nextID++
	h.id = r.nextID
	r.handles[h.id] = h
	r.mu.Unlock()

	go h.run(fn)
	return h
}

func (h *Handle) run(fn func()) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			select {
			case <-h.stop:
				return
			default:
			}
			h.call(fn)
		}
	}
}

func (h *Handle) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.reg.logger.Error("timer function panicked",
				"timer", h.name,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	fn()
}

// Stop cancels the timer. It does not wait for a running invocation, so it
// is safe to call from inside the timer function.
func (h *Handle) Stop() {
	h.once.Do(func() {
		close(h.stop)
		h.reg.mu.Lock()
		delete(h.reg.handles, h.id)
		h.reg.mu.Unlock()
	})
}

// Done is closed once the timer goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Name returns the name the timer was registered with.
func (h *Handle) Name() string {
	return h.name
}

// Len returns the number of running timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// StopAll stops every timer, waits for their goroutines to exit and
// rejects further registrations. It must not be called from a timer
// function.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.stopped = true
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	for _, h := range handles {
		<-h.done
	}
}
