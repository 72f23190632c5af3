package autosave

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

const (
	DefaultQuiet     = 2000 * time.Millisecond
	DefaultIndicator = 2000 * time.Millisecond
	defaultTimeout   = 10 * time.Second
)

// Options wires an Autosave to one form. Current, Save and Commit are
// required.
type Options[T any] struct {
	// Name labels the record in logs and results, e.g. "character".
	Name      string
	Clock     clock.Clock
	Quiet     time.Duration
	Indicator time.Duration
	Timeout   time.Duration

	// Current reads the form's field values at save time.
	Current func() T
	// Skip reports whether the record must not be saved, e.g. an empty name.
	Skip func(T) bool
	// Save sends the full record to the backend.
	Save func(ctx context.Context, record T) error
	// Commit updates local state after a successful save.
	Commit func(T)
	// OnResult observes every attempted save.
	OnResult func(name string, err error)
	// OnIndicator observes confirmation visibility changes.
	OnIndicator func(visible bool)
}

// Autosave debounces form edits into full-record saves. A failed save is
// logged and leaves committed state untouched; it is not retried.
type Autosave[T any] struct {
	opts      Options[T]
	debouncer *Debouncer
	indicator *Indicator
}

func New[T any](opts Options[T]) *Autosave[T] {
	if opts.Quiet <= 0 {
		opts.Quiet = DefaultQuiet
	}
	if opts.Indicator <= 0 {
		opts.Indicator = DefaultIndicator
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	a := &Autosave[T]{opts: opts}
	a.indicator = NewIndicator(opts.Clock, opts.Indicator, opts.OnIndicator)
	a.debouncer = NewDebouncer(opts.Clock, opts.Quiet, a.save)
	return a
}

// Changed records an edit to any watched field.
func (a *Autosave[T]) Changed() {
	a.debouncer.Trigger()
}

// Flush saves a pending edit now instead of waiting for the quiet period.
func (a *Autosave[T]) Flush() bool {
	return a.debouncer.Flush()
}

// Stop drops a pending edit without saving.
func (a *Autosave[T]) Stop() {
	a.debouncer.Cancel()
}

func (a *Autosave[T]) Indicator() *Indicator {
	return a.indicator
}

func (a *Autosave[T]) save() {
	record := a.opts.Current()
	if a.opts.Skip != nil && a.opts.Skip(record) {
		slog.Debug("autosave skipped", "record", a.opts.Name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.Timeout)
	defer cancel()

	err := a.opts.Save(ctx, record)
	if a.opts.OnResult != nil {
		a.opts.OnResult(a.opts.Name, err)
	}
	if err != nil {
		slog.Error("autosave failed", "record", a.opts.Name, "error", err)
		return
	}

	if a.opts.Commit != nil {
		a.opts.Commit(record)
	}
	a.indicator.Show()
	slog.Debug("autosaved", "record", a.opts.Name)
}
