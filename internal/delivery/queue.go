package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/promptline/internal/metrics"
)

const laneBuffer = 100

// Message is one text bound for one target.
type Message struct {
	Target   string
	Text     string
	PromptID int
}

// Queue delivers messages through per-target lanes. Messages to the same
// target go out in order; the semaphore bounds how many targets send at once.
type Queue struct {
	registry  *Registry
	retry     *RetryPolicy
	metrics   *metrics.Metrics
	semaphore *semaphore.Weighted

	lanes   map[string]chan Message
	pending atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a queue that lets up to maxConcurrent targets send at once.
// A nil policy uses DefaultRetryPolicy.
func NewQueue(registry *Registry, maxConcurrent int64, policy *RetryPolicy, m *metrics.Metrics) *Queue {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Queue{
		registry:  registry,
		retry:     policy,
		metrics:   m,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		lanes:     make(map[string]chan Message),
	}
}

// Start sets the queue's context. It must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight sends, closes all lanes and waits for them to exit.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for target, lane := range q.lanes {
		close(lane)
		delete(q.lanes, target)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds msg to its target's lane, starting the lane on first use.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.ctx.Err() != nil {
		return fmt.Errorf("delivery queue not running")
	}

	lane, ok := q.lanes[msg.Target]
	if !ok {
		lane = make(chan Message, laneBuffer)
		q.lanes[msg.Target] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	select {
	case lane <- msg:
		q.pending.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for target %s", msg.Target)
	}
}

func (q *Queue) processLane(lane chan Message) {
	defer q.wg.Done()
	for {
		select {
		case msg, ok := <-lane:
			if !ok {
				return
			}
			q.deliver(msg)
			q.pending.Add(-1)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) deliver(msg Message) {
	if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
		return
	}
	defer q.semaphore.Release(1)

	err := q.retry.Execute(q.ctx, func(ctx context.Context) error {
		return q.registry.Deliver(ctx, msg.Target, msg.Text)
	})
	q.metrics.Delivery(msg.Target, err)
	if err != nil {
		slog.Error("delivery failed", "target", msg.Target, "prompt_id", msg.PromptID, "error", err)
		return
	}
	slog.Debug("delivered", "target", msg.Target, "prompt_id", msg.PromptID)
}

// WaitIdle blocks until every enqueued message has been handled or the timeout
// expires. It reports whether the queue drained.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
