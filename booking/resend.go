package booking

import "context"

// ResendNotifications re-broadcasts the job push to all eligible translators,
// typically after a support request.
func (s *Service) ResendNotifications(ctx context.Context, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	s.notifier.BroadcastJob(ctx, job, "")
	return successMessage("Push sent", nil), nil
}

// ResendSMSNotifications re-texts the job to all eligible translators.
func (s *Service) ResendSMSNotifications(ctx context.Context, jobID string) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	count := s.notifier.BroadcastSMS(ctx, job)
	s.log.Info("sms broadcast resent", "job_id", job.ID, "count", count)
	return successMessage("SMS sent", nil), nil
}
