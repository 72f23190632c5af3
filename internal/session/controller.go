// Package session runs one prompt session at a time: it starts the session on
// the backend, polls for new prompts, renders each exactly once and stops.
//
// The controller's mutex serializes every state transition, cursor update and
// renderer call. Network requests run outside it, and each poll tick runs on
// its own goroutine, so requests may overlap. A response is applied only if
// the session it was issued for is still current, and only prompts above the
// cursor are rendered.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/metrics"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/scheduler"
	"github.com/user/promptline/internal/types"
)

const (
	DefaultPollInterval = 1000 * time.Millisecond
	defaultPollTimeout  = 10 * time.Second
)

var ErrSessionActive = errors.New("a session is already running")

type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	SessionID types.SessionID
	LastSeen  int
	Rendered  int
}

type Options struct {
	Backend  types.Backend
	Store    *configstore.Store
	Renderer *render.Renderer
	Notifier types.Notifier
	Metrics  *metrics.Metrics
	Clock    clock.WithTicker

	PollInterval time.Duration
	PollTimeout  time.Duration

	// OnStateChange is called outside the lock after each transition.
	OnStateChange func(State)
}

type Controller struct {
	opts Options

	mu       sync.Mutex
	state    State
	id       types.SessionID
	gen      uint64
	cursor   types.Cursor
	rendered int
	poller   *scheduler.Interval
	done     chan struct{}
}

func New(opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = notify.Log{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	return &Controller{opts: opts, cursor: types.NewCursor()}
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		SessionID: c.id,
		LastSeen:  c.cursor.Last(),
		Rendered:  c.rendered,
	}
}

// Done is closed when the most recent session ends. Before the first session
// it returns nil.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start validates the config snapshot and starts a session. Validation
// failures return without contacting the backend.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartWith(ctx, nil)
}

// StartWith is Start with the snapshot's settings passed through adjust
// first, e.g. to apply a schedule's overrides.
func (c *Controller) StartWith(ctx context.Context, adjust func(types.Settings) types.Settings) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		c.opts.Notifier.Notify(types.LevelError, "A session is already running")
		return ErrSessionActive
	}
	snap := c.opts.Store.Snapshot()
	if err := snap.Validate(); err != nil {
		c.mu.Unlock()
		c.opts.Notifier.Notify(types.LevelError, UserMessage(err))
		return err
	}
	if adjust != nil {
		snap.Settings = adjust(snap.Settings)
	}
	c.state = Starting
	c.mu.Unlock()
	c.changed(Starting)

	req := types.NewStartRequest(snap.Settings, snap.Character, snap.Theme)
	id, err := c.opts.Backend.StartSession(ctx, req)
	if err != nil {
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		c.changed(Idle)

		slog.Error("start session failed", "error", err)
		c.opts.Metrics.Session(metrics.SessionFailed)
		c.opts.Notifier.Notify(types.LevelError, "Error starting session")
		return fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.id = id
	c.cursor.Reset()
	c.rendered = 0
	c.state = Active
	c.done = make(chan struct{})
	c.opts.Renderer.Reset()
	c.poller = scheduler.NewInterval(c.opts.Clock, c.opts.PollInterval, func() { c.tick(gen) }, scheduler.WithImmediate())
	c.poller.Start()
	c.mu.Unlock()

	slog.Info("session started", "session_id", id,
		"duration_min", snap.Settings.SessionDuration, "interval_s", snap.Settings.MinPromptInterval)
	c.opts.Metrics.Session(metrics.SessionStarted)
	c.opts.Metrics.Cursor(types.NoPromptsSeen)
	c.opts.Notifier.Notify(types.LevelSuccess, "Prompt session started!")
	c.changed(Active)
	return nil
}

// Stop ends the active session: it asks the backend to stop, performs one
// final poll to drain prompts generated before the stop, then returns to
// Idle whatever that poll's outcome. Without an active session it is a no-op.
// If the stop request fails the session stays active.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return nil
	}
	c.state = Stopping
	id, gen := c.id, c.gen
	c.mu.Unlock()
	c.changed(Stopping)

	if err := c.opts.Backend.StopSession(ctx, id); err != nil {
		c.mu.Lock()
		resumed := c.gen == gen && c.state == Stopping
		if resumed {
			c.state = Active
		}
		c.mu.Unlock()
		if resumed {
			c.changed(Active)
		}

		slog.Error("stop session failed", "session_id", id, "error", err)
		c.opts.Notifier.Notify(types.LevelError, "Error stopping session")
		return fmt.Errorf("stop session: %w", err)
	}

	c.mu.Lock()
	lastSeen := c.cursor.Last()
	c.mu.Unlock()

	if err := c.fetch(ctx, gen, id, lastSeen); err != nil {
		slog.Warn("final poll failed", "session_id", id, "error", err)
	}

	c.mu.Lock()
	finished := c.gen == gen
	if finished {
		c.finishLocked()
	}
	c.mu.Unlock()

	if finished {
		slog.Info("session stopped", "session_id", id)
		c.opts.Metrics.Session(metrics.SessionStopped)
		c.opts.Notifier.Notify(types.LevelSuccess, "Session ended")
		c.changed(Idle)
	}
	return nil
}

// tick is one regular poll. Ticks are skipped unless the session they were
// scheduled for is still active.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != Active {
		c.mu.Unlock()
		return
	}
	id, lastSeen := c.id, c.cursor.Last()
	c.mu.Unlock()

	if err := c.fetch(context.Background(), gen, id, lastSeen); err != nil {
		slog.Warn("poll failed", "session_id", id, "last_seen", lastSeen, "error", err)
	}
}

func (c *Controller) fetch(ctx context.Context, gen uint64, id types.SessionID, lastSeen int) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PollTimeout)
	batch, err := c.opts.Backend.FetchPrompts(ctx, id, lastSeen)
	cancel()
	if err != nil {
		c.opts.Metrics.Poll(metrics.PollError)
		return err
	}
	c.apply(gen, batch)
	return nil
}

// apply renders the unseen prompts of a batch, advances the cursor, and ends
// an active session when the batch reports completion. Prompts are rendered
// before the session ends.
func (c *Controller) apply(gen uint64, batch *types.PromptBatch) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.opts.Metrics.Poll(metrics.PollStale)
		return
	}

	fresh := make([]types.Prompt, 0, len(batch.Prompts))
	for _, p := range batch.Prompts {
		if !c.cursor.Seen(p.ID) {
			fresh = append(fresh, p)
		}
	}
	for _, p := range fresh {
		c.cursor.Advance(p.ID)
	}
	if len(fresh) > 0 {
		c.opts.Renderer.Render(fresh)
		c.rendered += len(fresh)
	}
	lastSeen := c.cursor.Last()
	id := c.id

	completed := batch.Complete && c.state == Active
	if completed {
		c.finishLocked()
	}
	c.mu.Unlock()

	c.opts.Metrics.Poll(metrics.PollOK)
	if len(fresh) > 0 {
		slog.Debug("prompts received", "session_id", id, "count", len(fresh), "last_seen", lastSeen)
		c.opts.Metrics.Cursor(lastSeen)
	}
	if completed {
		slog.Info("session complete", "session_id", id)
		c.opts.Metrics.Session(metrics.SessionCompleted)
		c.changed(Idle)
	}
}

// finishLocked stops polling and clears the session. Caller holds c.mu.
func (c *Controller) finishLocked() {
	if c.poller != nil {
		c.poller.Stop()
		c.poller = nil
	}
	c.gen++
	c.state = Idle
	c.id = ""
	if c.done != nil {
		close(c.done)
	}
}

func (c *Controller) changed(s State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// UserMessage maps a Start error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionActive):
		return "A session is already running"
	case errors.Is(err, configstore.ErrCharacterRequired):
		return "Please define a character first"
	case errors.Is(err, configstore.ErrThemeRequired):
		return "Please define a theme first"
	default:
		return "Error starting session"
	}
}
