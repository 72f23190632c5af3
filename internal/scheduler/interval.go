// internal/scheduler/interval.go
package scheduler

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Interval runs a function on a fixed cadence until stopped. Each run starts
// in its own goroutine, so a slow run never delays the next tick and runs may
// overlap.
type Interval struct {
	clock     clock.WithTicker
	every     time.Duration
	fn        func()
	immediate bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// IntervalOption configures an Interval.
type IntervalOption func(*Interval)

// WithImmediate also runs the function once as soon as Start is called.
func WithImmediate() IntervalOption {
	return func(i *Interval) { i.immediate = true }
}

// NewInterval creates a stopped Interval. A nil clock means the real clock.
func NewInterval(clk clock.WithTicker, every time.Duration, fn func(), opts ...IntervalOption) *Interval {
	if clk == nil {
		clk = clock.RealClock{}
	}
	i := &Interval{
		clock: clk,
		every: every,
		fn:    fn,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start begins ticking. Calling Start on a running Interval is a no-op.
func (i *Interval) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	ticker := i.clock.NewTicker(i.every)
	i.stop, i.done = stop, done

	if i.immediate {
		go i.fn()
	}

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				select {
				case <-stop:
					return
				default:
				}
				go i.fn()
			}
		}
	}()
}

// Stop halts the ticker and waits for the tick loop to exit. Runs already in
// flight are not interrupted. Stop is safe to call from inside fn.
func (i *Interval) Stop() {
	i.mu.Lock()
	stop, done := i.stop, i.done
	i.stop, i.done = nil, nil
	i.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the Interval is ticking.
func (i *Interval) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stop != nil
}
