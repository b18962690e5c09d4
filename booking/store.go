package booking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"tolkflow/user"
)

// Layout for the due_date + due_time pair supplied by scheduled bookings.
const dueLayout = "01/02/2006 15:04"

// CreateParams carries the raw booking form. Empty strings and zero values
// mean "absent"; validation turns those into field-specific fail results.
type CreateParams struct {
	LanguageID int64
	Immediate  bool
	DueDate    string
	DueTime    string
	Duration   int

	// PhoneType is nil when the customer made no choice; scheduled bookings
	// must choose.
	PhoneType    *bool
	PhysicalType bool

	// JobFor is the multi-select audience input: male/female plus
	// normal/certified/certified_in_law/certified_in_helth.
	JobFor []string

	ByAdmin bool
}

const (
	msgFillAllFields  = "Du måste fylla in alla fält"
	msgMakeChoice     = "Du måste göra ett val här"
	msgBookingInPast  = "Can't create booking in the past"
	msgTranslatorRole = "Translator cannot create a booking"
)

// Store creates a new booking for a customer. Every domain failure comes back
// as a fail Result; only infrastructure trouble returns an error.
func (s *Service) Store(ctx context.Context, actor user.Profile, params CreateParams) (Result, error) {
	if actor.Role != user.RoleCustomer {
		return fail(msgTranslatorRole), nil
	}

	if r, ok := validateCreate(params); !ok {
		return r, nil
	}

	now := s.now()
	due, r, ok := s.resolveDue(params, now)
	if !ok {
		return r, nil
	}

	phoneType := params.PhoneType != nil && *params.PhoneType
	if params.Immediate {
		// Immediate sessions are always over the phone.
		phoneType = true
	}

	job := Job{
		ID:                   s.idGen(),
		UserID:               actor.ID,
		LanguageID:           params.LanguageID,
		Immediate:            params.Immediate,
		Due:                  due,
		Duration:             params.Duration,
		Status:               StatusPending,
		Gender:               genderFromJobFor(params.JobFor),
		Certified:            certifiedFromJobFor(params.JobFor),
		JobType:              JobTypeForConsumer(actor.ConsumerType),
		CustomerPhoneType:    phoneType,
		CustomerPhysicalType: params.PhysicalType,
		Town:                 actor.City,
		ByAdmin:              params.ByAdmin,
		CreatedAt:            now,
		WillExpireAt:         WillExpireAt(due, now),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin store tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, job)
	if err != nil {
		return Result{}, err
	}

	if err := s.enqueue(ctx, tx, TopicJobCreated, map[string]any{
		"job_id":    created.ID,
		"user_id":   created.UserID,
		"immediate": created.Immediate,
		"due":       created.Due.UTC(),
	}); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit store tx: %w", err)
	}

	jobType := "regular"
	if created.Immediate {
		jobType = "immediate"
	}

	return success(map[string]any{
		"id":                     created.ID,
		"job_for":                jobForDescription(created),
		"customer_town":          actor.City,
		"customer_type":          actor.CustomerType,
		"customer_physical_type": yesNo(created.CustomerPhysicalType),
		"type":                   jobType,
	}), nil
}

func validateCreate(params CreateParams) (Result, bool) {
	if params.LanguageID == 0 {
		return failField("from_language_id", msgFillAllFields), false
	}
	if params.Duration == 0 {
		return failField("duration", msgFillAllFields), false
	}
	if !params.Immediate {
		if params.DueDate == "" {
			return failField("due_date", msgFillAllFields), false
		}
		if params.DueTime == "" {
			return failField("due_time", msgFillAllFields), false
		}
		if params.PhoneType == nil {
			return failField("customer_phone_type", msgMakeChoice), false
		}
	}
	return Result{}, true
}

func (s *Service) resolveDue(params CreateParams, now time.Time) (time.Time, Result, bool) {
	if params.Immediate {
		return now.Add(immediateLeadTime), Result{}, true
	}

	due, err := time.ParseInLocation(dueLayout, params.DueDate+" "+params.DueTime, now.Location())
	if err != nil {
		return time.Time{}, failField("due_date", msgFillAllFields), false
	}
	if due.Before(now) {
		return time.Time{}, fail(msgBookingInPast), false
	}
	return due, Result{}, true
}

func genderFromJobFor(jobFor []string) *string {
	for _, g := range []string{"male", "female"} {
		if slices.Contains(jobFor, g) {
			v := g
			return &v
		}
	}
	return nil
}

// certifiedFromJobFor collapses the multi-select into one stored tier with a
// fixed precedence: combinations first, then specialisations, then generic.
func certifiedFromJobFor(jobFor []string) Certified {
	normal := slices.Contains(jobFor, "normal")
	certified := slices.Contains(jobFor, "certified")
	law := slices.Contains(jobFor, "certified_in_law")
	health := slices.Contains(jobFor, "certified_in_helth")

	switch {
	case normal && certified:
		return CertifiedBoth
	case normal && law:
		return CertifiedNLaw
	case normal && health:
		return CertifiedNHealth
	case certified:
		return CertifiedYes
	case law:
		return CertifiedLaw
	case health:
		return CertifiedHealth
	default:
		return CertifiedNormal
	}
}

// AttachEmailParams carries the follow-up form that completes a booking with
// contact details.
type AttachEmailParams struct {
	JobID        string
	UserEmail    string
	Reference    string
	Address      string
	Instructions string
	Town         string
}

// AttachEmail stores the booking's email override and address details, sends
// the requester a confirmation, and announces the job to eligible translators.
func (s *Service) AttachEmail(ctx context.Context, params AttachEmailParams) (Result, error) {
	job, err := s.repo.GetByID(ctx, params.JobID)
	if err != nil {
		return Result{}, err
	}
	requester, err := s.users.GetByID(ctx, job.UserID)
	if err != nil {
		return Result{}, err
	}

	job.UserEmail = params.UserEmail
	job.Reference = params.Reference
	if params.Address != "" {
		job.Address = params.Address
	}
	if params.Instructions != "" {
		job.Instructions = params.Instructions
	}
	if params.Town != "" {
		job.Town = params.Town
	} else if job.Town == "" {
		job.Town = requester.City
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("booking: begin attach-email tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updated, err := s.repo.Update(ctx, tx, job)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("booking: commit attach-email tx: %w", err)
	}

	s.notifier.JobCreatedConfirmation(ctx, updated)
	s.notifier.BroadcastJob(ctx, updated, "")

	return success(map[string]any{"job_id": updated.ID}), nil
}
