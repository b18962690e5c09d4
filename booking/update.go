package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tolkflow/user"
)

// UpdateParams is the admin edit form. Zero values leave the corresponding
// job field untouched; Status empty means no status change was requested.
type UpdateParams struct {
	Due             time.Time
	LanguageID      int64
	Status          Status
	TranslatorID    string
	TranslatorEmail string
	AdminComments   string
	Reference       string
	SessionTime     string
}

// Update applies an admin edit to a booking: reschedule, reassign, relabel,
// or force a status change. Every field change is logged with the admin's id.
// Notifications are suppressed when the (possibly new) due time is already in
// the past.
func (s *Service) Update(ctx context.Context, actor user.Profile, jobID string, params UpdateParams) (Result, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}

	currentTranslator, err := s.repo.CurrentAssignment(ctx, job.ID)
	if errors.Is(err, ErrNoAssignment) {
		currentTranslator, err = s.repo.LatestCompletedAssignment(ctx, job.ID)
	}
	if err != nil && !errors.Is(err, ErrNoAssignment) {
		return Result{}, err
	}

	newTranslatorID, err := s.resolveTranslator(ctx, params)
	if err != nil {
		return Result{}, err
	}

	translatorChanged := newTranslatorID != "" && newTranslatorID != currentTranslator.UserID
	dueChanged := !params.Due.IsZero() && !params.Due.Equal(job.Due)
	langChanged := params.LanguageID != 0 && params.LanguageID != job.LanguageID

	oldDue := job.Due
	oldLanguageID := job.LanguageID

	log := s.log.With("job_id", job.ID, "admin_id", actor.ID)
	if translatorChanged {
		log.Info("booking translator changed",
			"old_translator_id", currentTranslator.UserID, "new_translator_id", newTranslatorID)
	}
	if dueChanged {
		log.Info("booking rescheduled", "old_due", oldDue, "new_due", params.Due)
	}
	if langChanged {
		log.Info("booking language changed",
			"old_language_id", oldLanguageID, "new_language_id", params.LanguageID)
	}
	if params.AdminComments != job.AdminComments {
		log.Info("booking admin comments changed",
			"old_comment", job.AdminComments, "new_comment", params.AdminComments)
	}
	if params.Reference != job.Reference {
		log.Info("booking reference changed",
			"old_reference", job.Reference, "new_reference", params.Reference)
	}

	var outcome Outcome
	if params.Status != "" && params.Status != job.Status {
		outcome = Transition(TransitionRequest{
			Current:      job.Status,
			Requested:    params.Status,
			AdminComment: params.AdminComments,
			SessionTime:  params.SessionTime,
			Context: TransitionContext{
				TranslatorChanged: translatorChanged,
				DueChanged:        dueChanged,
				LangChanged:       langChanged,
			},
		})
		if outcome.Applied {
			log.Info("booking status changed",
				"old_status", string(job.Status), "new_status", string(params.Status))
		}
	}

	now := s.now()
	if dueChanged {
		job.Due = params.Due
	}
	if langChanged {
		job.LanguageID = params.LanguageID
	}
	job.AdminComments = params.AdminComments
	job.Reference = params.Reference
	if outcome.Applied {
		job.Status = params.Status
		s.applyEffects(&job, outcome.Effects, params, now)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if job, err = s.repo.Update(ctx, tx, job); err != nil {
		return Result{}, err
	}
	if translatorChanged {
		if currentTranslator.UserID != "" && currentTranslator.Active() {
			if err := s.repo.CancelAssignment(ctx, tx, currentTranslator.ID, now); err != nil {
				return Result{}, err
			}
		}
		if _, err := s.repo.CreateAssignment(ctx, tx, job.ID, newTranslatorID); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit update tx: %w", err)
	}

	if job.Due.Before(now) {
		return successMessage("Updated", nil), nil
	}

	translatorID := newTranslatorID
	if translatorID == "" {
		translatorID = currentTranslator.UserID
	}
	s.notifyEffects(ctx, job, outcome.Effects, translatorID)
	if dueChanged {
		s.notifier.DateChanged(ctx, job, translatorID, oldDue)
	}
	if translatorChanged {
		s.notifier.TranslatorChanged(ctx, job, currentTranslator.UserID, newTranslatorID)
	}
	if langChanged {
		s.notifier.LanguageChanged(ctx, job, translatorID, oldLanguageID)
	}
	return successMessage("Updated", nil), nil
}

func (s *Service) resolveTranslator(ctx context.Context, params UpdateParams) (string, error) {
	if params.TranslatorEmail != "" {
		profile, err := s.users.GetByEmail(ctx, params.TranslatorEmail)
		if err != nil {
			return "", err
		}
		return profile.ID, nil
	}
	return params.TranslatorID, nil
}

// applyEffects mutates job fields for the effects that change state; the
// notification effects are handled after commit by notifyEffects.
func (s *Service) applyEffects(job *Job, effects []Effect, params UpdateParams, now time.Time) {
	for _, e := range effects {
		switch e {
		case EffectResetCounters:
			job.CreatedAt = now
			job.WillExpireAt = WillExpireAt(job.Due, now)
		case EffectCompleteSession:
			job.EndAt = &now
			job.SessionTime = params.SessionTime
		}
	}
}

func (s *Service) notifyEffects(ctx context.Context, job Job, effects []Effect, translatorID string) {
	for _, e := range effects {
		switch e {
		case EffectNotifyReopened:
			s.notifier.JobReopened(ctx, job)
		case EffectNotifyAccepted:
			s.notifier.JobAccepted(ctx, job)
		case EffectNotifyAssigned:
			s.notifier.JobAccepted(ctx, job)
			s.notifier.TranslatorAssigned(ctx, job, translatorID)
			s.notifier.SessionStartReminder(ctx, job, job.UserID)
			s.notifier.SessionStartReminder(ctx, job, translatorID)
		case EffectNotifyCancelledFromPending:
			s.notifier.BookingCancelledFromPending(ctx, job)
		case EffectCompleteSession:
			s.notifier.SessionEnded(ctx, job, translatorID, job.SessionTime)
		case EffectNotifyWithdraw:
			s.notifier.WithdrawCancellation(ctx, job, translatorID)
		}
	}
}
