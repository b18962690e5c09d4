// Package actors holds the concurrent workload drivers for the stress test:
// customers posting bookings, translators racing over them, withdrawals,
// session completion and the outbox relay, all speaking raw SQL against the
// live schema.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Customer keeps posting pending bookings with randomized due times.
func Customer(ctx context.Context, pool *pgxpool.Pool, customerID string, languageID int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		due := time.Now().Add(time.Duration(1+rand.Intn(96)) * time.Hour)
		expire := due.Add(-time.Duration(rand.Intn(48)) * time.Hour)
		_, err := pool.Exec(ctx, `
			INSERT INTO jobs (id, user_id, from_language_id, due, duration, status, job_type, certified, created_at, will_expire_at)
			VALUES (gen_random_uuid(), $1, $2, $3, 30, 'pending', 'paid', 'yes', now(), $4)`,
			customerID, languageID, due, expire)
		if err != nil {
			return fmt.Errorf("customer insert: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Translator races to claim pending bookings. The partial unique index on
// active assignments is the arbiter; a 23505 under contention is expected
// and the claim is simply retried on another job.
func Translator(ctx context.Context, pool *pgxpool.Pool, translatorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := func() error {
			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)

			var jobID string
			err = tx.QueryRow(ctx, `
				SELECT id FROM jobs WHERE status = 'pending'
				ORDER BY due ASC LIMIT 1
				FOR UPDATE SKIP LOCKED`).Scan(&jobID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO translator_assignments (job_id, user_id) VALUES ($1, $2)`,
				jobID, translatorID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE jobs SET status = 'assigned' WHERE id = $1`, jobID); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// lost the race for this job
			} else if !errors.Is(err, context.Canceled) {
				return fmt.Errorf("translator claim: %w", err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Withdrawer cancels random open bookings the way a customer would: the job
// moves to a withdraw status, any active assignment is released, and a
// cancellation event lands in the outbox within the same transaction.
func Withdrawer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var jobID, status string
		err = tx.QueryRow(ctx, `
			SELECT id, status FROM jobs WHERE status IN ('pending', 'assigned')
			ORDER BY random() LIMIT 1
			FOR UPDATE SKIP LOCKED`).Scan(&jobID, &status)
		committed := false
		if err == nil {
			target := "withdrawbefore24"
			if rand.Intn(2) == 0 {
				target = "withdrawafter24"
			}
			_, err = tx.Exec(ctx, `UPDATE jobs SET status = $2, withdraw_at = now() WHERE id = $1`, jobID, target)
			if err == nil {
				_, _ = tx.Exec(ctx, `
					UPDATE translator_assignments SET cancel_at = now()
					WHERE job_id = $1 AND cancel_at IS NULL AND completed_at IS NULL`, jobID)
				_, _ = tx.Exec(ctx, `
					INSERT INTO outbox (topic, payload)
					VALUES ('job.cancelled', jsonb_build_object('job_id', $1::text, 'by', 'customer'))`, jobID)
				_ = tx.Commit(ctx)
				committed = true
			}
		}
		if !committed {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// SessionEnder walks assigned bookings through started to completed,
// stamping the session time and crediting the assignment.
func SessionEnder(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var jobID, status, customerID string
		err = tx.QueryRow(ctx, `
			SELECT id, status, user_id FROM jobs WHERE status IN ('assigned', 'started')
			ORDER BY random() LIMIT 1
			FOR UPDATE SKIP LOCKED`).Scan(&jobID, &status, &customerID)
		committed := false
		if err == nil {
			if status == "assigned" {
				_, err = tx.Exec(ctx, `UPDATE jobs SET status = 'started' WHERE id = $1`, jobID)
			} else {
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'completed', session_time = '0:30:00', end_at = now()
					WHERE id = $1`, jobID)
				if err == nil {
					_, _ = tx.Exec(ctx, `
						UPDATE translator_assignments SET completed_at = now(), completed_by = $2
						WHERE job_id = $1 AND cancel_at IS NULL AND completed_at IS NULL`, jobID, customerID)
					_, _ = tx.Exec(ctx, `
						INSERT INTO outbox (topic, payload)
						VALUES ('session.ended', jsonb_build_object('job_id', $1::text))`, jobID)
				}
			}
			if err == nil {
				_ = tx.Commit(ctx)
				committed = true
			}
		}
		if !committed {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// ExpirySweeper times out pending bookings past their expiry, like the
// server's background sweep.
func ExpirySweeper(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := pool.Exec(ctx, `
			UPDATE jobs SET status = 'timedout'
			WHERE status = 'pending' AND will_expire_at <= now()`); err != nil {
			return fmt.Errorf("expiry sweep: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// OutboxWorker drains unpublished events with SKIP LOCKED and stamps them
// published, mirroring the relay worker.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id FROM outbox WHERE published_at IS NULL
			ORDER BY id ASC LIMIT 20
			FOR UPDATE SKIP LOCKED`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]int64, 0, 20)
		for rows.Next() {
			var id int64
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		if len(ids) > 0 {
			_, _ = tx.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE id = ANY($1)`, ids)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
