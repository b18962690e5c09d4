package event

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestOutboxRelay_Integration connects to a real PostgreSQL via DATABASE_URL
// and verifies the enqueue -> drain -> mark-published cycle, including that
// a second drain does not redeliver.
func TestOutboxRelay_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'outbox')`).Scan(&exists); err != nil {
		t.Fatalf("check outbox table: %v", err)
	}
	if !exists {
		t.Skip("database schema missing; apply migrations first")
	}

	outbox := NewOutbox(pool)
	topic := fmt.Sprintf("itest.topic.%d", time.Now().UnixNano())

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE topic = $1`, topic)
	})

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := outbox.Enqueue(ctx, tx, topic, map[string]any{"job_id": "job-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	worker := NewWorker(pool, outbox, log, time.Hour)

	var delivered []Message
	worker.Subscribe(topic, func(ctx context.Context, msg Message) {
		delivered = append(delivered, msg)
	})

	if err := worker.drain(ctx); err != nil {
		t.Fatalf("drain (first): %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(delivered))
	}
	if delivered[0].Topic != topic {
		t.Fatalf("unexpected topic %q", delivered[0].Topic)
	}
	if delivered[0].Payload["job_id"] != "job-1" {
		t.Fatalf("unexpected payload: %v", delivered[0].Payload)
	}

	var unpublished int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1 AND published_at IS NULL`, topic).Scan(&unpublished); err != nil {
		t.Fatalf("count unpublished: %v", err)
	}
	if unpublished != 0 {
		t.Fatalf("expected 0 unpublished messages after drain, got %d", unpublished)
	}

	// A rolled-back producer transaction must leave nothing behind.
	tx2, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := outbox.Enqueue(ctx, tx2, topic, map[string]any{"job_id": "job-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx2.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if err := worker.drain(ctx); err != nil {
		t.Fatalf("drain (second): %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("expected no redelivery after rollback, got %d messages", len(delivered))
	}
}
