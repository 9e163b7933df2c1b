package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"exchange_go/internal/domain"
	"exchange_go/internal/infra"
	"exchange_go/internal/infra/storage"
)

// Matcher runs one idempotent matching attempt for an order.
type Matcher interface {
	AttemptMatch(orderID string) (*domain.Trade, error)
}

// Dispatcher decouples order placement from matching. Every placed order
// becomes a durable match job; worker goroutines drain an inbox channel
// and run matching attempts. Delivery is at-least-once: pending jobs are
// re-enqueued at startup and by a periodic sweep, which is safe because
// AttemptMatch is idempotent.
type Dispatcher struct {
	inbox       chan domain.MatchJob
	store       *storage.Storage
	matcher     Matcher
	workers     int
	maxAttempts int

	wg sync.WaitGroup
}

// NewDispatcher creates a new dispatcher instance.
func NewDispatcher(store *storage.Storage, matcher Matcher, queueSize, workers, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		inbox:       make(chan domain.MatchJob, queueSize),
		store:       store,
		matcher:     matcher,
		workers:     workers,
		maxAttempts: maxAttempts,
	}
}

// ScheduleMatch persists a match job for the order and queues it. Never
// blocks the caller: when the inbox is full the job stays pending and the
// sweep picks it up.
func (d *Dispatcher) ScheduleMatch(orderID string) {
	job, err := d.store.CreateMatchJob(orderID)
	if err != nil {
		slog.Error("failed to persist match job",
			slog.String("order_id", orderID), slog.Any("error", err))
		return
	}

	select {
	case d.inbox <- *job:
	default:
		slog.Warn("match inbox full, job left pending",
			slog.String("order_id", orderID))
	}
}

// Run starts the worker pool and the pending-job sweep, then blocks until
// ctx is cancelled and all workers have drained.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("match dispatcher started", slog.Int("workers", d.workers))

	d.recoverPending()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.wg.Add(1)
	go d.sweep(ctx)

	d.wg.Wait()
	slog.Info("match dispatcher stopped")
}

// recoverPending re-enqueues jobs interrupted by a previous shutdown,
// including retrying jobs whose backoff timer died with the process.
func (d *Dispatcher) recoverPending() {
	jobs, err := d.store.RecoverableMatchJobs()
	if err != nil {
		slog.Error("failed to load pending match jobs", slog.Any("error", err))
		return
	}
	for _, job := range jobs {
		select {
		case d.inbox <- job:
		default:
			return // inbox full; the sweep retries later
		}
	}
	if len(jobs) > 0 {
		slog.Info("recovered pending match jobs", slog.Int("count", len(jobs)))
	}
}

// sweep periodically re-enqueues stale pending jobs (dropped by a full
// inbox or a crashed worker). Redelivery is harmless: attempts against a
// no-longer-open order are no-ops.
func (d *Dispatcher) sweep(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := d.store.PendingMatchJobs()
			if err != nil {
				slog.Error("sweep failed", slog.Any("error", err))
				continue
			}
			for _, job := range jobs {
				if time.Since(job.UpdatedAt) < 30*time.Second {
					continue
				}
				select {
				case d.inbox <- job:
				default:
				}
			}
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.inbox:
			d.process(ctx, job)
		}
	}
}

// process runs one matching attempt and settles the job's fate: done on
// success, retried with backoff on transient contention, failed after the
// attempt budget or on a non-retriable error.
func (d *Dispatcher) process(ctx context.Context, job domain.MatchJob) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("match worker panic",
				slog.String("order_id", job.OrderID), slog.Any("panic", r))
			job.Status = domain.MatchJobFailed
			job.LastError = "panic during matching"
			if err := d.store.UpdateMatchJob(&job); err != nil {
				slog.Error("failed to update match job", slog.Any("error", err))
			}
		}
	}()

	job.Attempts++

	_, err := d.matcher.AttemptMatch(job.OrderID)
	if err == nil {
		job.Status = domain.MatchJobDone
		job.LastError = ""
		if err := d.store.UpdateMatchJob(&job); err != nil {
			slog.Error("failed to update match job", slog.Any("error", err))
		}
		return
	}

	job.LastError = err.Error()

	if domain.IsRetriable(err) && job.Attempts < d.maxAttempts {
		infra.GlobalMetrics.RecordMatchRetry()
		// Marked retrying before the timer is armed so the sweep cannot
		// re-enqueue the job while its backoff is in flight.
		job.Status = domain.MatchJobRetrying
		if uerr := d.store.UpdateMatchJob(&job); uerr != nil {
			slog.Error("failed to update match job", slog.Any("error", uerr))
		}
		slog.Warn("matching attempt blocked, retrying",
			slog.String("order_id", job.OrderID),
			slog.Int("attempt", job.Attempts),
			slog.Any("error", err))

		delay := infra.CalculateBackoff(job.Attempts)
		retry := job
		time.AfterFunc(delay, func() {
			select {
			case d.inbox <- retry:
			case <-ctx.Done():
			}
		})
		return
	}

	job.Status = domain.MatchJobFailed
	if uerr := d.store.UpdateMatchJob(&job); uerr != nil {
		slog.Error("failed to update match job", slog.Any("error", uerr))
	}
	slog.Error("matching attempt failed",
		slog.String("order_id", job.OrderID),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", err))
}
