package booking

import (
	"context"
	"fmt"
)

// Reopen puts a cancelled booking back on the market. A timed-out job cannot
// be reset in place, so reopening one clones it into a fresh pending booking
// that references the original; any other status is reset to pending with a
// new expiry clock.
func (s *Service) Reopen(ctx context.Context, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	translatorID := s.currentTranslatorID(ctx, job.ID)
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin reopen tx: %w", err)
	}
	defer tx.Rollback(ctx)

	reopened := job
	if job.Status == StatusTimedOut {
		reopened.ID = s.idGen()
		reopened.Status = StatusPending
		reopened.CreatedAt = now
		reopened.WillExpireAt = WillExpireAt(job.Due, now)
		reopened.EndAt = nil
		reopened.WithdrawAt = nil
		reopened.AdminComments = fmt.Sprintf("This booking is a reopening of booking #%s", job.ID)
		if reopened, err = s.repo.Create(ctx, tx, reopened); err != nil {
			return Result{}, err
		}
	} else {
		reopened.Status = StatusPending
		reopened.CreatedAt = now
		reopened.WillExpireAt = WillExpireAt(job.Due, now)
		if reopened, err = s.repo.Update(ctx, tx, reopened); err != nil {
			return Result{}, err
		}
	}

	if translatorID != "" {
		if err := s.repo.DeleteAssignment(ctx, tx, job.ID, translatorID); err != nil {
			return Result{}, err
		}
	}

	if err := s.enqueue(ctx, tx, TopicJobCreated, map[string]any{
		"job_id":   reopened.ID,
		"reopened": true,
	}); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit reopen tx: %w", err)
	}

	s.notifier.BroadcastJob(ctx, reopened, "")
	return successMessage("Tolk cancelled!", nil), nil
}
