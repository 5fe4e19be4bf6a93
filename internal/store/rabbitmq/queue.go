// Package rabbitmq carries the fake backend's reply jobs over RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/legalwise/internal/linkyuntest"
)

type jobMessage struct {
	JobID string `json:"job_id"`
}

// Queue is a linkyuntest.JobQueue backed by a durable queue with retry and
// dead-letter companions named {queue}.retry and {queue}.dlq.
type Queue struct {
	conn  *amqp.Connection
	pub   *amqp.Channel
	queue string
	log   *slog.Logger

	mu sync.Mutex // serialises publishes on pub
}

var _ linkyuntest.JobQueue = (*Queue)(nil)

func Dial(url, queue string, log *slog.Logger) (*Queue, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Queue{conn: conn, pub: ch, queue: queue, log: log}, nil
}

func declare(ch *amqp.Channel, mainQ string) error {
	retryQ := mainQ + ".retry"
	dlqQ := mainQ + ".dlq"

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}
	// TTL-expired retries go back to the main queue
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", retryQ, err)
	}
	// nack(requeue=false) lands in the DLQ
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", mainQ, err)
	}
	return nil
}

func (q *Queue) Publish(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pub.PublishWithContext(cctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Consume opens a dedicated channel with manual acks. Malformed messages are
// dead-lettered without reaching the caller.
func (q *Queue) Consume(ctx context.Context, prefetch int) (<-chan linkyuntest.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan linkyuntest.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Info("delivery channel closed", "queue", q.queue)
					return
				}
				var m jobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					q.log.Warn("bad message", "queue", q.queue, "error", err)
					_ = d.Nack(false, false)
					continue
				}
				select {
				case out <- toDelivery(m.JobID, d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func toDelivery(jobID string, d amqp.Delivery) linkyuntest.Delivery {
	return linkyuntest.Delivery{
		JobID: jobID,
		Ack:   func() error { return d.Ack(false) },
		Nack:  func() error { return d.Nack(false, false) },
	}
}

func (q *Queue) Close() error {
	var errs []error
	if q.pub != nil {
		if err := q.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
