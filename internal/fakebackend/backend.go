// Package fakebackend is an in-memory implementation of the prompt-session
// REST surface. It backs the client tests and the fake-backend command.
package fakebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"k8s.io/utils/clock"

	"github.com/user/promptline/internal/types"
)

// Route names used by Calls and FailNext.
const (
	RouteCharacter = "character"
	RouteTheme     = "theme"
	RouteSettings  = "settings"
	RouteStart     = "start_session"
	RouteStop      = "stop_session"
	RoutePrompts   = "prompts"
)

type session struct {
	req     types.StartRequest
	prompts []types.Prompt
	active  bool
	done    chan struct{}
}

func (s *session) finish() {
	if s.active {
		s.active = false
		close(s.done)
	}
}

// Backend holds records and sessions in memory. It is safe for concurrent use.
type Backend struct {
	clock      clock.Clock
	generate   bool
	requestLog bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	character types.Character
	theme     types.Theme
	settings  types.Settings
	sessions  map[types.SessionID]*session
	lastStart *types.StartRequest
	calls     map[string]int
	failures  map[string][]int
}

type Option func(*Backend)

// WithClock sets the clock for timestamps and the generator.
func WithClock(c clock.Clock) Option {
	return func(b *Backend) { b.clock = c }
}

// WithGenerator starts a Generator for every new session.
func WithGenerator() Option {
	return func(b *Backend) { b.generate = true }
}

// WithRequestLog logs each request through chi's logger middleware.
func WithRequestLog() Option {
	return func(b *Backend) { b.requestLog = true }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		clock:    clock.RealClock{},
		settings: types.DefaultSettings(),
		sessions: make(map[types.SessionID]*session),
		calls:    make(map[string]int),
		failures: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// Close stops every running generator and waits for them to exit.
func (b *Backend) Close() {
	b.cancel()
	b.wg.Wait()
}

// Handler returns the router. Routes live under /api, with /health alongside.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	if b.requestLog {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.With(b.track(RouteCharacter)).Get("/character", b.getCharacter)
		r.With(b.track(RouteCharacter)).Post("/character", b.saveCharacter)
		r.With(b.track(RouteTheme)).Get("/theme", b.getTheme)
		r.With(b.track(RouteTheme)).Post("/theme", b.saveTheme)
		r.With(b.track(RouteSettings)).Get("/settings", b.getSettings)
		r.With(b.track(RouteSettings)).Post("/settings", b.saveSettings)
		r.With(b.track(RouteStart)).Post("/start_session", b.startSession)
		r.With(b.track(RouteStop)).Post("/stop_session/{id}", b.stopSession)
		r.With(b.track(RoutePrompts)).Get("/prompts/{id}", b.getPrompts)
	})
	return r
}

// track counts calls per route and serves any queued failure instead of the
// real handler.
func (b *Backend) track(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			b.calls[route]++
			var status int
			if queued := b.failures[route]; len(queued) > 0 {
				status = queued[0]
				b.failures[route] = queued[1:]
			}
			b.mu.Unlock()

			if status != 0 {
				writeError(w, status, "injected failure")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Calls returns how many requests hit route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// FailNext makes the next request to route answer with status.
func (b *Backend) FailNext(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], status)
}

// LastStart returns the most recent start request body.
func (b *Backend) LastStart() (types.StartRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastStart == nil {
		return types.StartRequest{}, false
	}
	return *b.lastStart, true
}

// Push appends a prompt to a session, assigning the next id.
func (b *Backend) Push(id types.SessionID, text string, countdown, final bool, nextInterval *float64) (types.Prompt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok {
		return types.Prompt{}, fmt.Errorf("session not found: %s", id)
	}
	now := b.clock.Now()
	p := types.Prompt{
		ID:           len(s.prompts),
		Text:         text,
		Timestamp:    float64(now.UnixNano()) / 1e9,
		IsCountdown:  countdown,
		IsFinal:      final,
		NextInterval: nextInterval,
	}
	s.prompts = append(s.prompts, p)
	return p, nil
}

// Complete marks a session inactive, as the generator does when time is up.
func (b *Backend) Complete(id types.SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		s.finish()
	}
}

// Active reports whether a session exists and is still generating.
func (b *Backend) Active(id types.SessionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	return ok && s.active
}

func (b *Backend) doneChan(id types.SessionID) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

func (b *Backend) getCharacter(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	c := b.character
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) saveCharacter(w http.ResponseWriter, r *http.Request) {
	var c types.Character
	if !decode(w, r, &c) {
		return
	}
	b.mu.Lock()
	b.character = c
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) getTheme(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	t := b.theme
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, t)
}

func (b *Backend) saveTheme(w http.ResponseWriter, r *http.Request) {
	var t types.Theme
	if !decode(w, r, &t) {
		return
	}
	b.mu.Lock()
	b.theme = t
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) getSettings(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	s := b.settings
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, s)
}

func (b *Backend) saveSettings(w http.ResponseWriter, r *http.Request) {
	var s types.Settings
	if !decode(w, r, &s) {
		return
	}
	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) startSession(w http.ResponseWriter, r *http.Request) {
	var req types.StartRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	id := b.newSessionID()
	b.sessions[id] = &session{req: req, active: true, done: make(chan struct{})}
	b.lastStart = &req
	b.mu.Unlock()

	if b.generate {
		g := NewGenerator(b, b.clock)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			g.Run(b.ctx, id, req)
		}()
	}

	writeJSON(w, http.StatusOK, types.StartResponse{SessionID: id})
}

// newSessionID derives an id from the current time. Caller holds b.mu.
func (b *Backend) newSessionID() types.SessionID {
	now := b.clock.Now()
	base := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 6, 64)
	id := types.SessionID(base)
	for n := 1; ; n++ {
		if _, taken := b.sessions[id]; !taken {
			return id
		}
		id = types.SessionID(base + "-" + strconv.Itoa(n))
	}
}

func (b *Backend) stopSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(chi.URLParam(r, "id"))

	b.mu.Lock()
	s, ok := b.sessions[id]
	if ok {
		s.finish()
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) getPrompts(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(chi.URLParam(r, "id"))

	lastSeen := types.NoPromptsSeen
	if raw := r.URL.Query().Get("last_seen"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid last_seen")
			return
		}
		lastSeen = max(n, types.NoPromptsSeen)
	}

	b.mu.Lock()
	s, ok := b.sessions[id]
	var batch types.PromptBatch
	if ok {
		from := min(lastSeen+1, len(s.prompts))
		batch.Prompts = append([]types.Prompt{}, s.prompts[from:]...)
		batch.Complete = !s.active
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
