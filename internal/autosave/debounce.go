// Package autosave persists form records after a quiet period of no edits.
package autosave

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Debouncer runs fn once the quiet period has passed since the last Trigger.
// At most one run is pending at a time; each Trigger replaces the pending one.
type Debouncer struct {
	clock clock.Clock
	quiet time.Duration
	fn    func()

	mu    sync.Mutex
	gen   uint64
	timer clock.Timer
	stop  chan struct{}
}

func NewDebouncer(clk clock.Clock, quiet time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Debouncer{clock: clk, quiet: quiet, fn: fn}
}

// Trigger schedules fn after the quiet period, cancelling any pending run.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
	d.gen++
	gen := d.gen
	timer := d.clock.NewTimer(d.quiet)
	stop := make(chan struct{})
	d.timer, d.stop = timer, stop

	go func() {
		select {
		case <-stop:
			return
		case <-timer.C():
		}
		if d.claim(gen) {
			d.fn()
		}
	}()
}

// Flush runs a pending fn immediately. It reports whether anything was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	pending := d.stop != nil
	d.cancelLocked()
	d.gen++
	d.mu.Unlock()

	if pending {
		d.fn()
	}
	return pending
}

// Cancel drops a pending run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.gen++
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop != nil
}

// claim reports whether gen is still the latest trigger and clears it.
func (d *Debouncer) claim(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return false
	}
	d.timer, d.stop = nil, nil
	return true
}

func (d *Debouncer) cancelLocked() {
	if d.stop == nil {
		return
	}
	d.timer.Stop()
	close(d.stop)
	d.timer, d.stop = nil, nil
}
