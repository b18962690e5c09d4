package booking

import (
	"context"
	"fmt"
	"time"

	"tolkflow/user"
)

// withdrawWindow separates a penalty-free cancellation from a late one.
const withdrawWindow = 24 * time.Hour

// Cancel withdraws a booking. Customers can always cancel, but a cancellation
// less than 24 hours before the session is recorded as a late withdrawal.
// Translators can only step down more than 24 hours ahead; the job then goes
// back on the market.
func (s *Service) Cancel(ctx context.Context, actor user.Profile, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	translatorID := s.currentTranslatorID(ctx, job.ID)

	if actor.Role == user.RoleCustomer {
		return s.cancelAsCustomer(ctx, job, translatorID)
	}
	return s.cancelAsTranslator(ctx, job, translatorID)
}

func (s *Service) cancelAsCustomer(ctx context.Context, job Job, translatorID string) (Result, error) {
	now := s.now()
	withdrawAt := now
	job.WithdrawAt = &withdrawAt
	if job.Due.Sub(now) >= withdrawWindow {
		job.Status = StatusWithdrawBefore
	} else {
		job.Status = StatusWithdrawAfter
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := s.enqueue(ctx, tx, TopicJobCancelled, map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
		"by":     "customer",
	}); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit cancel tx: %w", err)
	}

	// Only a late withdrawal disturbs the translator; an early one frees
	// their calendar silently.
	if job.Status == StatusWithdrawAfter && translatorID != "" {
		s.notifier.CustomerCancelled(ctx, job, translatorID)
	}
	return success(nil), nil
}

func (s *Service) cancelAsTranslator(ctx context.Context, job Job, translatorID string) (Result, error) {
	now := s.now()
	if job.Due.Sub(now) <= withdrawWindow {
		return fail(fmt.Sprintf(
			"Du kan inte avboka en bokning som sker inom 24 timmar genom DigitalTolk. Vänligen ring på %s och gör din avbokning över telefon. Tack!",
			s.cancelPhone,
		)), nil
	}

	// The job goes back on the market with a fresh expiry clock.
	job.Status = StatusPending
	job.CreatedAt = now
	job.WillExpireAt = WillExpireAt(job.Due, now)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if translatorID != "" {
		if err := s.repo.DeleteAssignment(ctx, tx, job.ID, translatorID); err != nil {
			return Result{}, err
		}
	}
	if err := s.enqueue(ctx, tx, TopicJobCancelled, map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
		"by":     "translator",
	}); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit cancel tx: %w", err)
	}

	s.notifier.TranslatorCancelled(ctx, job)
	s.notifier.BroadcastJob(ctx, job, translatorID)
	return success(nil), nil
}
