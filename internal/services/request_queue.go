package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/javajoker/catalog-backend/internal/metrics"
)

// RequestQueue bounds outbound vendor calls (feed fetches, connection tests,
// image downloads) across the whole process. At most limit tasks run at once;
// waiters are admitted in arrival order.
type RequestQueue struct {
	sem     *semaphore.Weighted
	limit   int
	metrics *metrics.Collector

	mu        sync.Mutex
	inFlight  int
	waiting   int
	completed int64
}

type QueueStats struct {
	Limit     int   `json:"limit"`
	InFlight  int   `json:"in_flight"`
	Waiting   int   `json:"waiting"`
	Completed int64 `json:"completed"`
}

func NewRequestQueue(limit int, m *metrics.Collector) *RequestQueue {
	if limit < 1 {
		limit = 1
	}
	return &RequestQueue{
		sem:     semaphore.NewWeighted(int64(limit)),
		limit:   limit,
		metrics: m,
	}
}

// Do blocks until a slot is free, then runs fn in the caller's goroutine.
// A ctx cancelled while waiting returns ctx.Err() without running fn.
func (q *RequestQueue) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	enqueued := time.Now()
	q.update(func() { q.waiting++ })

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.update(func() { q.waiting-- })
		q.metrics.QueueTask(name, "cancelled", time.Since(enqueued))
		return err
	}
	waited := time.Since(enqueued)
	q.update(func() {
		q.waiting--
		q.inFlight++
	})

	defer func() {
		q.sem.Release(1)
		q.update(func() {
			q.inFlight--
			q.completed++
		})
	}()

	if waited > time.Second {
		logrus.WithFields(logrus.Fields{
			"task":   name,
			"waited": waited.String(),
		}).Debug("Request queue slot acquired")
	}

	err := fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	q.metrics.QueueTask(name, result, waited)
	return err
}

// Enqueue runs fn through q and returns its value.
func Enqueue[T any](ctx context.Context, q *RequestQueue, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := q.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func (q *RequestQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Limit:     q.limit,
		InFlight:  q.inFlight,
		Waiting:   q.waiting,
		Completed: q.completed,
	}
}

func (q *RequestQueue) update(fn func()) {
	q.mu.Lock()
	fn()
	inFlight, waiting := q.inFlight, q.waiting
	q.mu.Unlock()
	q.metrics.QueueState(inFlight, waiting)
}
