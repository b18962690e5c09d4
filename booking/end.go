package booking

import (
	"context"
	"fmt"
)

// EndSession closes out a started job: the elapsed time since the scheduled
// start becomes the billable session time, both parties are mailed a session
// summary, and the assignment is marked completed. Ending a job that never
// started is a no-op.
func (s *Service) EndSession(ctx context.Context, jobID, completedBy string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if job.Status != StatusStarted {
		return success(nil), nil
	}

	now := s.now()
	elapsed := now.Sub(job.Due)
	sessionTime := fmt.Sprintf("%d:%02d:%02d",
		int(elapsed.Hours()), int(elapsed.Minutes())%60, int(elapsed.Seconds())%60)

	job.Status = StatusCompleted
	job.EndAt = &now
	job.SessionTime = sessionTime

	assignment, err := s.repo.CurrentAssignment(ctx, job.ID)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin end tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := s.repo.CompleteAssignment(ctx, tx, assignment.ID, now, completedBy); err != nil {
		return Result{}, err
	}
	if err := s.enqueue(ctx, tx, TopicSessionEnded, map[string]any{
		"job_id":        job.ID,
		"translator_id": assignment.UserID,
		"session_time":  sessionTime,
	}); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit end tx: %w", err)
	}

	s.notifier.SessionEnded(ctx, job, assignment.UserID, sessionTime)
	return success(nil), nil
}

// MarkCustomerNotCalled records that the customer never phoned in for the
// session. The assignment is still completed so the translator gets paid.
func (s *Service) MarkCustomerNotCalled(ctx context.Context, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	job.Status = StatusNotCarriedOut
	job.EndAt = &now

	assignment, err := s.repo.CurrentAssignment(ctx, job.ID)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin not-called tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := s.repo.CompleteAssignment(ctx, tx, assignment.ID, now, assignment.UserID); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit not-called tx: %w", err)
	}

	return success(nil), nil
}
