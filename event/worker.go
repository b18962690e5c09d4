package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler observes one delivered event. Handlers must be quick; long work
// belongs behind the handler's own queue.
type Handler func(ctx context.Context, msg Message)

// Worker polls the outbox and hands events to registered handlers. Delivery
// is at-least-once: a crash between handling and marking republishes on the
// next tick.
type Worker struct {
	pool     *pgxpool.Pool
	outbox   *PGOutbox
	log      *slog.Logger
	interval time.Duration
	batch    int

	handlers map[string][]Handler
}

func NewWorker(pool *pgxpool.Pool, outbox *PGOutbox, log *slog.Logger, interval time.Duration) *Worker {
	return &Worker{
		pool:     pool,
		outbox:   outbox,
		log:      log,
		interval: interval,
		batch:    100,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic. Not safe to call after Run has
// started.
func (w *Worker) Subscribe(topic string, h Handler) {
	w.handlers[topic] = append(w.handlers[topic], h)
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.log.Error("outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("event: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	messages, err := w.outbox.FetchUnpublished(ctx, tx, w.batch)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		for _, h := range w.handlers[msg.Topic] {
			h(ctx, msg)
		}
		ids = append(ids, msg.ID)
	}

	if err := w.outbox.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("event: commit drain tx: %w", err)
	}

	w.log.Info("outbox drained", "count", len(ids))
	return nil
}
