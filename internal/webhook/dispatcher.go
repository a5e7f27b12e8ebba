package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/botfleet/internal/queue"
)

// ErrQueueClosed is returned for deliveries enqueued after Close.
var ErrQueueClosed = errors.New("webhook queue closed")

// LocalQueue delivers in-process when no redis is available. Deliveries
// are attempted once; a full buffer drops the event.
type LocalQueue struct {
	deliverer  *Deliverer
	timeout    time.Duration
	deliveries chan queue.WebhookDeliverPayload

	mu     sync.RWMutex
	closed bool
}

func NewLocalQueue(d *Deliverer, timeout time.Duration) *LocalQueue {
	q := &LocalQueue{
		deliverer:  d,
		timeout:    timeout,
		deliveries: make(chan queue.WebhookDeliverPayload, 1000),
	}
	go q.processLoop()
	return q
}

func (q *LocalQueue) EnqueueWebhookDeliver(p queue.WebhookDeliverPayload) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.deliveries <- p:
	default:
		slog.Warn("webhook delivery queue full, dropping", "webhook_id", p.WebhookID, "event", p.Event)
	}
	return nil
}

// Close stops accepting deliveries. Buffered ones still run. Calling it
// more than once is safe.
func (q *LocalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.deliveries)
}

func (q *LocalQueue) processLoop() {
	for p := range q.deliveries {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.deliverer.Deliver(ctx, p, 1); err != nil {
			slog.Error("local webhook delivery failed", "error", err, "webhook_id", p.WebhookID)
		}
		cancel()
	}
}
