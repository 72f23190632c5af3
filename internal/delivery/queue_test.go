package delivery

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/promptline/internal/render"
	"github.com/user/promptline/internal/types"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	fail  int
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("connection reset")
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func newTestQueue(t *testing.T, reg *Registry, maxConcurrent int64) *Queue {
	t.Helper()
	q := NewQueue(reg, maxConcurrent, fastPolicy(3), nil)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

func TestQueueOrderPerTarget(t *testing.T) {
	reg := NewRegistry()
	s := &recordingSender{}
	reg.Register("slack", s)
	q := newTestQueue(t, reg, 2)

	for _, text := range []string{"one", "two", "three"} {
		if err := q.Enqueue(Message{Target: "slack", Text: text}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if !q.WaitIdle(time.Second) {
		t.Fatal("queue did not drain")
	}

	if want := []string{"one", "two", "three"}; !reflect.DeepEqual(s.got(), want) {
		t.Errorf("expected %v, got %v", want, s.got())
	}
}

func TestQueueRetriesTransientFailure(t *testing.T) {
	reg := NewRegistry()
	s := &recordingSender{fail: 2}
	reg.Register("telegram", s)
	q := newTestQueue(t, reg, 1)

	if err := q.Enqueue(Message{Target: "telegram", Text: "hi"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !q.WaitIdle(time.Second) {
		t.Fatal("queue did not drain")
	}
	if got := s.got(); len(got) != 1 {
		t.Errorf("expected one delivery after retries, got %v", got)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	reg := NewRegistry()
	var inFlight, peak atomic.Int32
	slow := SenderFunc(func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	for _, target := range []string{"a", "b", "c", "d"} {
		reg.Register(target, slow)
	}
	q := newTestQueue(t, reg, 2)

	for _, target := range reg.Targets() {
		for i := 0; i < 3; i++ {
			if err := q.Enqueue(Message{Target: target, Text: "x"}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}
	}
	if !q.WaitIdle(2 * time.Second) {
		t.Fatal("queue did not drain")
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 concurrent sends, saw %d", p)
	}
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q := NewQueue(NewRegistry(), 1, nil, nil)
	if err := q.Enqueue(Message{Target: "slack"}); err == nil {
		t.Error("expected error before Start")
	}
	q.Start(context.Background())
	q.Stop()
	if err := q.Enqueue(Message{Target: "slack"}); err == nil {
		t.Error("expected error after Stop")
	}
}

func TestForwardHookFansOut(t *testing.T) {
	reg := NewRegistry()
	tg, sl := &recordingSender{}, &recordingSender{}
	reg.Register("telegram", tg)
	reg.Register("slack", sl)
	q := newTestQueue(t, reg, 2)

	r := render.New(nopSink{}, ForwardHook(q))
	r.Render([]types.Prompt{{ID: 4, Text: "Describe the <b>harbor</b>."}})

	if !q.WaitIdle(time.Second) {
		t.Fatal("queue did not drain")
	}
	for name, s := range map[string]*recordingSender{"telegram": tg, "slack": sl} {
		got := s.got()
		if len(got) != 1 {
			t.Fatalf("%s: expected 1 message, got %d", name, len(got))
		}
		if !strings.HasPrefix(got[0], "Prompt #5") || !strings.Contains(got[0], "harbor") {
			t.Errorf("%s: unexpected text %q", name, got[0])
		}
	}
}

type nopSink struct{}

func (nopSink) ShowPlaceholder(string) {}
func (nopSink) ClearPlaceholder()      {}
func (nopSink) Append(*render.Unit)    {}
func (nopSink) Decorated(*render.Unit) {}
