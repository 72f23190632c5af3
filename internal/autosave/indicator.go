package autosave

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// IndicatorLabel is the text shown after a successful autosave.
const IndicatorLabel = "Auto-saved"

// Indicator is a transient confirmation. Showing it while visible replaces the
// current one, so at most one is present, and the removal timer of a replaced
// indicator never hides its successor.
type Indicator struct {
	clock    clock.Clock
	duration time.Duration
	onChange func(visible bool)

	mu      sync.Mutex
	gen     uint64
	visible bool
	stop    chan struct{}
}

// NewIndicator creates a hidden indicator. onChange, if set, is called outside
// the lock whenever visibility changes.
func NewIndicator(clk clock.Clock, duration time.Duration, onChange func(visible bool)) *Indicator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Indicator{clock: clk, duration: duration, onChange: onChange}
}

func (i *Indicator) Show() {
	i.mu.Lock()
	if i.stop != nil {
		close(i.stop)
	}
	i.gen++
	gen := i.gen
	stop := make(chan struct{})
	i.stop = stop
	wasVisible := i.visible
	i.visible = true
	timer := i.clock.NewTimer(i.duration)
	i.mu.Unlock()

	if !wasVisible {
		i.notify(true)
	}

	go func() {
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C():
		}
		i.mu.Lock()
		if i.gen != gen {
			i.mu.Unlock()
			return
		}
		i.visible = false
		i.stop = nil
		i.mu.Unlock()
		i.notify(false)
	}()
}

func (i *Indicator) Visible() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.visible
}

// Label returns IndicatorLabel while visible and "" otherwise.
func (i *Indicator) Label() string {
	if i.Visible() {
		return IndicatorLabel
	}
	return ""
}

func (i *Indicator) notify(visible bool) {
	if i.onChange != nil {
		i.onChange(visible)
	}
}
