// Package audience decides which translators hear about which jobs. It is
// the matching core shared by the broadcast path (job -> translators) and the
// job board (translator -> jobs).
package audience

import (
	"context"
	"slices"
	"time"

	"tolkflow/booking"
	"tolkflow/user"
)

// Directory is the user lookup surface the selector needs.
type Directory interface {
	ActiveTranslators(ctx context.Context, excludeUserID string) ([]user.Profile, error)
	BlacklistedIDs(ctx context.Context, customerID string) ([]string, error)
	LanguagesOf(ctx context.Context, userID string) ([]int64, error)
	TownsCompatible(ctx context.Context, customerID, translatorID string) (bool, error)
}

// JobSource lists open jobs matching a translator's capabilities. The query
// pushes the cheap filters (type, language, gender) into SQL; the selector
// applies the per-pair ones (level, blacklist, towns) afterwards.
type JobSource interface {
	PendingJobs(ctx context.Context, jobType booking.JobType, languageIDs []int64, gender *string) ([]booking.Job, error)
}

// Buckets splits a job's audience by push timing: Immediate translators are
// notified right away, Delayed ones opted out of nighttime pushes and wait
// for the next business morning.
type Buckets struct {
	Immediate []user.Profile
	Delayed   []user.Profile
}

// Selector applies the matching rules between jobs and translators.
type Selector struct {
	dir  Directory
	jobs JobSource
	now  func() time.Time

	nightStart int // hour, inclusive
	nightEnd   int // hour, exclusive
}

func NewSelector(dir Directory, jobs JobSource, nightStart, nightEnd int) *Selector {
	return &Selector{
		dir:        dir,
		jobs:       jobs,
		now:        time.Now,
		nightStart: nightStart,
		nightEnd:   nightEnd,
	}
}

// WithClock overrides the time source, for tests.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// TranslatorTypeForJob maps a job's payment type to the translator category
// allowed to take it.
func TranslatorTypeForJob(jt booking.JobType) string {
	switch jt {
	case booking.JobTypePaid:
		return user.TranslatorProfessional
	case booking.JobTypeRWS:
		return user.TranslatorRWS
	default:
		return user.TranslatorVolunteer
	}
}

// JobTypeForTranslator is the inverse mapping, used when a translator browses
// the job board.
func JobTypeForTranslator(translatorType string) booking.JobType {
	switch translatorType {
	case user.TranslatorProfessional:
		return booking.JobTypePaid
	case user.TranslatorRWS:
		return booking.JobTypeRWS
	default:
		return booking.JobTypeUnpaid
	}
}

// LevelsForCertified expands a job's certification requirement into the
// translator levels that satisfy it. An unset requirement accepts everyone.
func LevelsForCertified(c booking.Certified) []string {
	switch c {
	case booking.CertifiedYes, booking.CertifiedBoth:
		return []string{user.LevelCertified, user.LevelCertifiedLaw, user.LevelCertifiedHealth}
	case booking.CertifiedLaw, booking.CertifiedNLaw:
		return []string{user.LevelCertifiedLaw}
	case booking.CertifiedHealth, booking.CertifiedNHealth:
		return []string{user.LevelCertifiedHealth}
	case booking.CertifiedNormal:
		return []string{user.LevelLayman, user.LevelReadCourses}
	default:
		return []string{
			user.LevelCertified, user.LevelCertifiedLaw, user.LevelCertifiedHealth,
			user.LevelLayman, user.LevelReadCourses,
		}
	}
}

// TranslatorsForJob returns every translator eligible to hear about the job,
// bucketed by push timing. The excluded user (usually the translator who just
// cancelled) never appears.
func (s *Selector) TranslatorsForJob(ctx context.Context, job booking.Job, excludeUserID string) (Buckets, error) {
	translators, err := s.dir.ActiveTranslators(ctx, excludeUserID)
	if err != nil {
		return Buckets{}, err
	}
	blacklisted, err := s.dir.BlacklistedIDs(ctx, job.UserID)
	if err != nil {
		return Buckets{}, err
	}

	wantType := TranslatorTypeForJob(job.JobType)
	wantLevels := LevelsForCertified(job.Certified)
	night := IsNightTime(s.now(), s.nightStart, s.nightEnd)

	var buckets Buckets
	for _, t := range translators {
		if t.NotGetNotification {
			continue
		}
		if job.Immediate && t.NotGetEmergency {
			continue
		}
		if t.TranslatorType != wantType {
			continue
		}
		if slices.Contains(blacklisted, t.ID) {
			continue
		}
		ok, err := s.matchesCapabilities(ctx, job, t, wantLevels)
		if err != nil {
			return Buckets{}, err
		}
		if !ok {
			continue
		}

		if night && t.NotGetNighttime {
			buckets.Delayed = append(buckets.Delayed, t)
		} else {
			buckets.Immediate = append(buckets.Immediate, t)
		}
	}
	return buckets, nil
}

func (s *Selector) matchesCapabilities(ctx context.Context, job booking.Job, t user.Profile, wantLevels []string) (bool, error) {
	if job.Gender != nil && (t.Gender == nil || *t.Gender != *job.Gender) {
		return false, nil
	}
	if !intersects(t.TranslatorLevels, wantLevels) {
		return false, nil
	}

	languages, err := s.dir.LanguagesOf(ctx, t.ID)
	if err != nil {
		return false, err
	}
	if !slices.Contains(languages, job.LanguageID) {
		return false, nil
	}

	// A physical-only session is out of reach unless the translator covers
	// the customer's town.
	if job.CustomerPhysicalType && !job.CustomerPhoneType {
		ok, err := s.dir.TownsCompatible(ctx, job.UserID, t.ID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// PotentialJobs returns the open jobs a translator could take, in board
// order. Jobs whose customer blacklisted the translator, and physical-only
// jobs outside the translator's towns, are filtered out.
func (s *Selector) PotentialJobs(ctx context.Context, t user.Profile) ([]booking.Job, error) {
	languages, err := s.dir.LanguagesOf(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	jobs, err := s.jobs.PendingJobs(ctx, JobTypeForTranslator(t.TranslatorType), languages, t.Gender)
	if err != nil {
		return nil, err
	}

	var out []booking.Job
	for _, job := range jobs {
		if !intersects(t.TranslatorLevels, LevelsForCertified(job.Certified)) {
			continue
		}
		blacklisted, err := s.dir.BlacklistedIDs(ctx, job.UserID)
		if err != nil {
			return nil, err
		}
		if slices.Contains(blacklisted, t.ID) {
			continue
		}
		if job.CustomerPhysicalType && !job.CustomerPhoneType {
			ok, err := s.dir.TownsCompatible(ctx, job.UserID, t.ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, job)
	}
	return out, nil
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}
