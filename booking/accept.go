package booking

import (
	"context"
	"fmt"

	"tolkflow/user"
)

const (
	msgAlreadyBookedList = "Du har redan en bokning den tiden! Bokningen är inte accepterad."
	msgTakenByOther      = "Denna tolkning har redan accepterats av annan tolk. Du har inte fått denna tolkning"
)

// Accept claims a pending job for the translator. The job row is locked for
// the duration of the transaction, so two translators racing on the same job
// see it assigned exactly once.
func (s *Service) Accept(ctx context.Context, actor user.Profile, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}

	overlap, err := s.repo.HasOverlappingBooking(ctx, actor.ID, job.Due, job.Duration)
	if err != nil {
		return Result{}, err
	}
	if overlap {
		return fail(msgAlreadyBookedList), nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin accept tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job, err = s.repo.GetForUpdate(ctx, tx, jobID); err != nil {
		return Result{}, err
	}
	if job.Status != StatusPending {
		return fail(msgTakenByOther), nil
	}

	if _, err := s.repo.CreateAssignment(ctx, tx, job.ID, actor.ID); err != nil {
		return Result{}, err
	}
	job.Status = StatusAssigned
	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit accept tx: %w", err)
	}

	s.notifier.JobAccepted(ctx, job)

	language, err := s.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return Result{}, err
	}
	return successMessage(fmt.Sprintf(
		"Du har nu accepterat och fått bokningen för %stolk %dmin %s",
		language, job.Duration, job.Due.Format("2006-01-02 15:04:05"),
	), nil), nil
}

// AcceptByID is the deep-link variant reached from a push notification. It
// behaves like Accept but phrases refusals for a single-job context.
func (s *Service) AcceptByID(ctx context.Context, actor user.Profile, jobID string) (Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin accept tx: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := s.repo.GetForUpdate(ctx, tx, jobID)
	if err != nil {
		return Result{}, err
	}

	overlap, err := s.repo.HasOverlappingBooking(ctx, actor.ID, job.Due, job.Duration)
	if err != nil {
		return Result{}, err
	}
	if overlap {
		return fail(fmt.Sprintf(
			"Du har redan en bokning den tiden %s. Du har inte fått denna tolkning",
			job.Due.Format("2006-01-02 15:04:05"),
		)), nil
	}
	if job.Status != StatusPending {
		return fail(msgTakenByOther), nil
	}

	if _, err := s.repo.CreateAssignment(ctx, tx, job.ID, actor.ID); err != nil {
		return Result{}, err
	}
	job.Status = StatusAssigned
	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit accept tx: %w", err)
	}

	s.notifier.JobAccepted(ctx, job)

	language, err := s.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return Result{}, err
	}
	return successMessage(fmt.Sprintf(
		"Du har nu accepterat och fått bokningen för %stolk %dmin %s",
		language, job.Duration, job.Due.Format("2006-01-02 15:04:05"),
	), nil), nil
}
