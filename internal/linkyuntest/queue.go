package linkyuntest

import (
	"context"
	"errors"
	"sync"
)

// Delivery is one reply job handed to a worker. Exactly one of Ack or Nack must be called.
type Delivery struct {
	JobID string
	Ack   func() error
	Nack  func() error
}

// JobQueue carries reply job ids from the send handler to the worker pool.
type JobQueue interface {
	Publish(ctx context.Context, jobID string) error
	// Consume streams deliveries until ctx is done; prefetch bounds unacked deliveries.
	Consume(ctx context.Context, prefetch int) (<-chan Delivery, error)
	Close() error
}

var ErrQueueClosed = errors.New("job queue closed")

// MemoryQueue is an in-process JobQueue. Nacked jobs are dropped into Dead.
type MemoryQueue struct {
	ch chan string

	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool

	deadMu sync.Mutex
	dead   []string
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, prefetch int) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case id, ok := <-q.ch:
				if !ok {
					return
				}
				d := Delivery{
					JobID: id,
					Ack:   func() error { return nil },
					Nack: func() error {
						q.deadMu.Lock()
						q.dead = append(q.dead, id)
						q.deadMu.Unlock()
						return nil
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Dead lists the job ids that were nacked.
func (q *MemoryQueue) Dead() []string {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]string(nil), q.dead...)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
