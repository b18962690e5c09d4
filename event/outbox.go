// Package event carries domain events (job created, job cancelled, session
// ended) through a transactional outbox: producers append rows inside their
// own transaction, a worker relays them to subscribers afterwards. An event
// is never published for a transaction that rolled back.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one relayed domain event.
type Message struct {
	ID        int64
	Topic     string
	Payload   map[string]any
	CreatedAt time.Time
}

// PGOutbox appends events to the outbox table.
type PGOutbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *PGOutbox {
	return &PGOutbox{pool: pool}
}

// Enqueue appends one event inside the caller's transaction.
func (o *PGOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (topic, payload)
VALUES ($1, $2);
`
	if _, err := tx.Exec(ctx, insertSQL, topic, payloadBytes); err != nil {
		return fmt.Errorf("event: insert outbox message: %w", err)
	}
	return nil
}

// FetchUnpublished claims up to limit unpublished events in insertion order,
// locking them against concurrent workers.
func (o *PGOutbox) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const query = `
SELECT id, topic, payload, created_at
FROM outbox
WHERE published_at IS NULL
ORDER BY id ASC
LIMIT $1
FOR UPDATE SKIP LOCKED;
`
	rows, err := tx.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("event: fetch outbox: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var payloadBytes []byte
		if err := rows.Scan(&m.ID, &m.Topic, &payloadBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("event: scan outbox row: %w", err)
		}
		if err := json.Unmarshal(payloadBytes, &m.Payload); err != nil {
			return nil, fmt.Errorf("event: decode outbox payload: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event: fetch outbox: %w", err)
	}
	return messages, nil
}

// MarkPublished stamps the events as delivered.
func (o *PGOutbox) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const updateSQL = `
UPDATE outbox
SET published_at = now()
WHERE id = ANY($1);
`
	if _, err := tx.Exec(ctx, updateSQL, ids); err != nil {
		return fmt.Errorf("event: mark outbox published: %w", err)
	}
	return nil
}
