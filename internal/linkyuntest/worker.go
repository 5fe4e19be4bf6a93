package linkyuntest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Responder produces the assistant reply to a prompt.
type Responder func(prompt string) string

// EchoResponder answers every prompt by quoting it back.
func EchoResponder(prompt string) string {
	return "收到您的问题：" + prompt
}

// Worker drains the job queue with a fixed pool of goroutines.
type Worker struct {
	repo        *Repo
	queue       JobQueue
	concurrency int
	delay       func() time.Duration
	reply       Responder
	log         *slog.Logger
}

func NewWorker(repo *Repo, queue JobQueue, concurrency int, delay func() time.Duration, reply Responder, log *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if delay == nil {
		delay = func() time.Duration { return 0 }
	}
	if reply == nil {
		reply = EchoResponder
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{repo: repo, queue: queue, concurrency: concurrency, delay: delay, reply: reply, log: log}
}

// Run blocks until ctx is done or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.queue.Consume(ctx, w.concurrency)
	if err != nil {
		return err
	}
	w.log.Info("worker started", "concurrency", w.concurrency)

	// worker pool
	jobs := make(chan Delivery, w.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				start := time.Now()
				if err := w.handleJob(ctx, d.JobID); err != nil {
					w.log.Warn("job failed", "worker", workerID, "job", d.JobID, "cost", time.Since(start), "error", err)
					_ = d.Nack()
					continue
				}
				if err := d.Ack(); err != nil {
					w.log.Warn("ack failed", "worker", workerID, "job", d.JobID, "error", err)
				}
			}
		}(i)
	}

	// dispatcher
	defer func() {
		close(jobs)
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				w.log.Info("delivery channel closed")
				return nil
			}
			jobs <- d
		}
	}
}

func (w *Worker) handleJob(ctx context.Context, jobID string) error {
	jobStart := time.Now()

	_ = w.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := w.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	t := time.NewTimer(w.delay())
	select {
	case <-ctx.Done():
		t.Stop()
		_ = w.repo.MarkJobFailed(context.WithoutCancel(ctx), jobID, ctx.Err().Error())
		return ctx.Err()
	case <-t.C:
	}

	genStart := time.Now()
	m := &ChatMessage{ChatID: j.ChatID, Role: "assistant", Content: w.reply(j.Prompt)}
	if err := w.repo.InsertMessage(ctx, m); err != nil {
		_ = w.repo.MarkJobFailed(ctx, jobID, err.Error())
		w.log.Warn("job_timing_failed", "job", jobID, "gen", time.Since(genStart), "total", time.Since(jobStart), "error", err)
		return err
	}

	if err := w.repo.MarkJobSucceeded(ctx, jobID, m.ID); err != nil {
		w.log.Warn("job_timing_failed", "job", jobID, "gen", time.Since(genStart), "total", time.Since(jobStart), "error", err)
		return err
	}

	if total := time.Since(jobStart); total > 2*time.Second {
		w.log.Info("job_timing", "job", jobID, "gen", time.Since(genStart), "total", total)
	}
	return nil
}
