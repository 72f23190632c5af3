package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/notify"
	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/types"
)

// scriptedBackend answers each prompt fetch through onFetch, which receives
// the 0-based call index and the last_seen sent.
type scriptedBackend struct {
	mu        sync.Mutex
	starts    []types.StartRequest
	stops     int
	lastSeens []int
	startErr  error
	stopErr   error
	onFetch   func(call, lastSeen int) (*types.PromptBatch, error)
}

func (b *scriptedBackend) GetCharacter(context.Context) (*types.Character, error) {
	return &types.Character{}, nil
}
func (b *scriptedBackend) SaveCharacter(context.Context, types.Character) error { return nil }
func (b *scriptedBackend) GetTheme(context.Context) (*types.Theme, error)       { return &types.Theme{}, nil }
func (b *scriptedBackend) SaveTheme(context.Context, types.Theme) error         { return nil }
func (b *scriptedBackend) GetSettings(context.Context) (*types.Settings, error) {
	s := types.DefaultSettings()
	return &s, nil
}
func (b *scriptedBackend) SaveSettings(context.Context, types.Settings) error { return nil }

func (b *scriptedBackend) StartSession(_ context.Context, req types.StartRequest) (types.SessionID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, req)
	if b.startErr != nil {
		return "", b.startErr
	}
	return "session-1", nil
}

func (b *scriptedBackend) StopSession(context.Context, types.SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	return b.stopErr
}

func (b *scriptedBackend) FetchPrompts(_ context.Context, _ types.SessionID, lastSeen int) (*types.PromptBatch, error) {
	b.mu.Lock()
	call := len(b.lastSeens)
	b.lastSeens = append(b.lastSeens, lastSeen)
	onFetch := b.onFetch
	b.mu.Unlock()

	if onFetch == nil {
		return &types.PromptBatch{}, nil
	}
	return onFetch(call, lastSeen)
}

func (b *scriptedBackend) fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lastSeens)
}

func (b *scriptedBackend) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.starts)
}

type nopSink struct{}

func (nopSink) ShowPlaceholder(string) {}
func (nopSink) ClearPlaceholder()      {}
func (nopSink) Append(*render.Unit)    {}
func (nopSink) Decorated(*render.Unit) {}

type harness struct {
	backend  *scriptedBackend
	store    *configstore.Store
	renderer *render.Renderer
	notes    *notify.Recorder
	clock    *clocktesting.FakeClock
	ctrl     *Controller

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, backend *scriptedBackend) *harness {
	t.Helper()
	h := &harness{
		backend:  backend,
		store:    configstore.New(),
		renderer: render.New(nopSink{}),
		notes:    &notify.Recorder{},
		clock:    clocktesting.NewFakeClock(time.Unix(1700000000, 0)),
	}
	h.store.SetCharacter(types.Character{Name: "Ada"})
	h.store.SetTheme(types.Theme{ThemeName: "Sea"})
	h.ctrl = New(Options{
		Backend:  backend,
		Store:    h.store,
		Renderer: h.renderer,
		Notifier: h.notes,
		Clock:    h.clock,
		OnStateChange: func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
	})
	t.Cleanup(func() {
		h.ctrl.mu.Lock()
		if h.ctrl.poller != nil {
			h.ctrl.poller.Stop()
		}
		h.ctrl.mu.Unlock()
	})
	return h
}

func (h *harness) renderedIDs() []int {
	units := h.renderer.Units()
	out := make([]int, len(units))
	for i, u := range units {
		out[i] = u.Prompt.ID
	}
	return out
}

// tick advances the fake clock by one poll interval once the poller is
// waiting on it.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
	h.clock.Step(DefaultPollInterval)
}

func batch(complete bool, ids ...int) *types.PromptBatch {
	b := &types.PromptBatch{Complete: complete}
	for _, id := range ids {
		b.Prompts = append(b.Prompts, types.Prompt{ID: id, Text: "prompt"})
	}
	return b
}

func TestStartWithoutNamesIssuesNoRequest(t *testing.T) {
	backend := &scriptedBackend{}
	h := newHarness(t, backend)

	h.store.SetCharacter(types.Character{Name: "   "})
	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, configstore.ErrCharacterRequired)

	h.store.SetCharacter(types.Character{Name: "Ada"})
	h.store.SetTheme(types.Theme{})
	err = h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, configstore.ErrThemeRequired)

	assert.Equal(t, 0, backend.startCount())
	assert.Equal(t, Idle, h.ctrl.Status().State)

	last, ok := h.notes.Last()
	require.True(t, ok)
	assert.Equal(t, types.LevelError, last.Level)
	assert.Equal(t, "Please define a theme first", last.Message)
}

func TestStartSendsMergedRequest(t *testing.T) {
	backend := &scriptedBackend{}
	h := newHarness(t, backend)
	h.store.SetSettings(types.Settings{SessionDuration: 5, MinPromptInterval: 30})

	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Equal(t, 1, backend.startCount())
	req := backend.starts[0]
	assert.Equal(t, 5, req.SessionDuration)
	assert.Equal(t, 30, req.MinPromptInterval)
	assert.Equal(t, "Ada", req.Character.Name)
	assert.Equal(t, "Sea", req.Theme.ThemeName)

	st := h.ctrl.Status()
	assert.Equal(t, Active, st.State)
	assert.Equal(t, types.SessionID("session-1"), st.SessionID)
	assert.Equal(t, types.NoPromptsSeen, st.LastSeen)

	// One immediate poll with the sentinel cursor.
	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, types.NoPromptsSeen, backend.lastSeens[0])
}

func TestStartWhileActiveFails(t *testing.T) {
	backend := &scriptedBackend{}
	h := newHarness(t, backend)

	require.NoError(t, h.ctrl.Start(context.Background()))
	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Equal(t, 1, backend.startCount())
}

func TestStartFailureStaysIdle(t *testing.T) {
	backend := &scriptedBackend{startErr: errors.New("backend down")}
	h := newHarness(t, backend)

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, Idle, h.ctrl.Status().State)
	assert.Equal(t, []State{Starting, Idle}, h.states)

	last, _ := h.notes.Last()
	assert.Equal(t, "Error starting session", last.Message)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, backend.fetches())
}

func TestCompletionScenario(t *testing.T) {
	backend := &scriptedBackend{
		onFetch: func(call, _ int) (*types.PromptBatch, error) {
			if call == 0 {
				return &types.PromptBatch{Prompts: []types.Prompt{{ID: 0, Text: "A"}}}, nil
			}
			return batch(true), nil
		},
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Status().LastSeen == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{0}, h.renderedIDs())
	assert.Equal(t, Active, h.ctrl.Status().State)

	h.tick(t)
	require.Eventually(t, func() bool { return h.ctrl.Status().State == Idle }, time.Second, time.Millisecond)

	select {
	case <-h.ctrl.Done():
	default:
		t.Fatal("Done not closed after completion")
	}

	// No further requests once complete.
	fetched := backend.fetches()
	h.clock.Step(5 * DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, fetched, backend.fetches())
	assert.Equal(t, 2, fetched)
}

func TestRenderBeforeStop(t *testing.T) {
	backend := &scriptedBackend{
		onFetch: func(int, int) (*types.PromptBatch, error) {
			return batch(true, 0, 1, 2), nil
		},
	}
	h := newHarness(t, backend)

	atIdle := make(chan []int, 1)
	h.ctrl.opts.OnStateChange = func(s State) {
		if s == Idle {
			atIdle <- h.renderedIDs()
		}
	}

	require.NoError(t, h.ctrl.Start(context.Background()))

	select {
	case ids := <-atIdle:
		assert.Equal(t, []int{0, 1, 2}, ids)
	case <-time.After(time.Second):
		t.Fatal("session never completed")
	}
	assert.Equal(t, 2, h.ctrl.Status().LastSeen)
}

func TestRenderPreservesArrivalOrder(t *testing.T) {
	backend := &scriptedBackend{
		onFetch: func(call, _ int) (*types.PromptBatch, error) {
			switch call {
			case 0:
				return batch(false, 3, 4), nil
			case 1:
				return batch(false, 5), nil
			default:
				return batch(false), nil
			}
		},
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return h.ctrl.Status().LastSeen == 4 }, time.Second, time.Millisecond)
	h.tick(t)
	require.Eventually(t, func() bool { return h.ctrl.Status().LastSeen == 5 }, time.Second, time.Millisecond)

	assert.Equal(t, []int{3, 4, 5}, h.renderedIDs())
	assert.Equal(t, 4, backend.lastSeens[1])
}

func TestPollErrorsKeepTicking(t *testing.T) {
	backend := &scriptedBackend{
		onFetch: func(call, _ int) (*types.PromptBatch, error) {
			if call < 2 {
				return nil, errors.New("timeout")
			}
			return batch(false, 0), nil
		},
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)
	h.tick(t)
	require.Eventually(t, func() bool { return backend.fetches() == 2 }, time.Second, time.Millisecond)
	h.tick(t)
	require.Eventually(t, func() bool { return h.ctrl.Status().LastSeen == 0 }, time.Second, time.Millisecond)

	assert.Equal(t, Active, h.ctrl.Status().State)
	// Background poll failures never notify the user.
	for _, e := range h.notes.Entries() {
		assert.NotEqual(t, types.LevelError, e.Level, e.Message)
	}
}

func TestOverlappingPollsNeverRegressCursor(t *testing.T) {
	release := make(chan struct{})
	backend := &scriptedBackend{
		onFetch: func(call, _ int) (*types.PromptBatch, error) {
			switch call {
			case 0:
				// Slow response, overtaken by the next tick.
				<-release
				return batch(false, 0), nil
			case 1:
				return batch(false, 0, 1, 2), nil
			default:
				return batch(false), nil
			}
		},
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)
	h.tick(t)
	require.Eventually(t, func() bool { return h.ctrl.Status().LastSeen == 2 }, time.Second, time.Millisecond)

	close(release)
	time.Sleep(20 * time.Millisecond)

	st := h.ctrl.Status()
	assert.Equal(t, 2, st.LastSeen)
	assert.Equal(t, 3, st.Rendered)
	assert.Equal(t, []int{0, 1, 2}, h.renderedIDs())
}

func TestStopPerformsExactlyOneDrainPoll(t *testing.T) {
	backend := &scriptedBackend{}
	backend.onFetch = func(call, _ int) (*types.PromptBatch, error) {
		backend.mu.Lock()
		stopped := backend.stops > 0
		backend.mu.Unlock()
		if stopped {
			// Prompts generated before the stop, delivered with completion.
			return batch(true, 0, 1), nil
		}
		return batch(false), nil
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)

	before := backend.fetches()
	require.NoError(t, h.ctrl.Stop(context.Background()))

	assert.Equal(t, before+1, backend.fetches())
	assert.Equal(t, []int{0, 1}, h.renderedIDs())
	assert.Equal(t, Idle, h.ctrl.Status().State)
	assert.Equal(t, types.SessionID(""), h.ctrl.Status().SessionID)

	last, _ := h.notes.Last()
	assert.Equal(t, "Session ended", last.Message)

	h.clock.Step(5 * DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before+1, backend.fetches())
}

func TestStopIdleWhenDrainFails(t *testing.T) {
	backend := &scriptedBackend{}
	backend.onFetch = func(call, _ int) (*types.PromptBatch, error) {
		if call > 0 {
			return nil, errors.New("connection reset")
		}
		return batch(false), nil
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, 2, backend.fetches())
	assert.Equal(t, Idle, h.ctrl.Status().State)
}

func TestStopWithoutSessionIsNoop(t *testing.T) {
	backend := &scriptedBackend{}
	h := newHarness(t, backend)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	assert.Equal(t, 0, backend.stops)
	assert.Equal(t, 0, backend.fetches())
}

func TestStopFailureResumesSession(t *testing.T) {
	backend := &scriptedBackend{stopErr: errors.New("503")}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)

	err := h.ctrl.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, Active, h.ctrl.Status().State)
	assert.Equal(t, 1, backend.fetches(), "no drain poll after a failed stop")

	last, _ := h.notes.Last()
	assert.Equal(t, "Error stopping session", last.Message)

	// Polling resumes.
	h.tick(t)
	require.Eventually(t, func() bool { return backend.fetches() == 2 }, time.Second, time.Millisecond)
}

func TestLateResponseAfterIdleIsIgnored(t *testing.T) {
	release := make(chan struct{})
	backend := &scriptedBackend{}
	backend.onFetch = func(call, _ int) (*types.PromptBatch, error) {
		if call == 0 {
			<-release
			return batch(false, 7), nil
		}
		return batch(false), nil
	}
	h := newHarness(t, backend)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return backend.fetches() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.ctrl.Stop(context.Background()))
	require.Equal(t, Idle, h.ctrl.Status().State)

	close(release)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, h.renderedIDs())
	assert.Equal(t, types.NoPromptsSeen, h.ctrl.Status().LastSeen)
}

func TestNewSessionResetsCursor(t *testing.T) {
	backend := &scriptedBackend{}
	backend.onFetch = func(call, _ int) (*types.PromptBatch, error) {
		if call == 0 {
			return batch(true, 0, 1), nil
		}
		return batch(false), nil
	}
	h := newHarness(t, backend)

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Status().State == Idle }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.ctrl.Status().LastSeen)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, types.NoPromptsSeen, h.ctrl.Status().LastSeen)
	assert.Empty(t, h.renderedIDs())
	require.Eventually(t, func() bool { return backend.fetches() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, types.NoPromptsSeen, backend.lastSeens[1])
}

func TestStartWithAdjustsSettings(t *testing.T) {
	backend := &scriptedBackend{}
	h := newHarness(t, backend)

	err := h.ctrl.StartWith(context.Background(), func(s types.Settings) types.Settings {
		s.SessionDuration = 2
		return s
	})
	require.NoError(t, err)

	require.Equal(t, 1, backend.startCount())
	assert.Equal(t, 2, backend.starts[0].SessionDuration)
	assert.Equal(t, types.DefaultSettings().MinPromptInterval, backend.starts[0].MinPromptInterval)
	assert.Equal(t, types.DefaultSettings(), h.store.Settings(), "store untouched")
}
