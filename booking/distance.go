package booking

import (
	"context"
	"fmt"
)

// DistanceParams is the post-session feed with travel details and manual
// handling flags for invoicing.
type DistanceParams struct {
	JobID           string
	Distance        string
	TravelTime      string
	SessionTime     string
	AdminComments   string
	Flagged         bool
	ManuallyHandled bool
	ByAdmin         bool
}

// UpdateDistance records the travel distance and admin bookkeeping flags for
// a finished booking. Flagging a job requires a comment explaining why.
func (s *Service) UpdateDistance(ctx context.Context, params DistanceParams) (Result, error) {
	if params.Flagged && params.AdminComments == "" {
		return fail("Please, add comment"), nil
	}

	job, err := s.repo.GetByID(ctx, params.JobID)
	if err != nil {
		return Result{}, err
	}

	if params.Distance != "" {
		job.Distance = params.Distance
	}
	if params.TravelTime != "" {
		job.TravelTime = params.TravelTime
	}
	if params.SessionTime != "" {
		job.SessionTime = params.SessionTime
	}
	job.AdminComments = params.AdminComments
	job.Flagged = params.Flagged
	job.ManuallyHandled = params.ManuallyHandled
	job.ByAdmin = params.ByAdmin

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin distance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit distance tx: %w", err)
	}

	return successMessage("Record updated!", nil), nil
}
