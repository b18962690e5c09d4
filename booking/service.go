package booking

import (
	"context"
	"log/slog"
	"time"

	"tolkflow/user"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Outbox topics published by the lifecycle service.
const (
	TopicJobCreated   = "booking.created"
	TopicJobCancelled = "booking.cancelled"
	TopicSessionEnded = "session.ended"
)

// Minutes of lead time granted to immediate bookings.
const immediateLeadTime = 5 * time.Minute

// Customers inside the 24h window must cancel over the phone.
const defaultCancellationPhone = "+46 73 75 86 865"

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserDirectory is the profile lookup surface the service needs.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.Profile, error)
	GetByEmail(ctx context.Context, email string) (user.Profile, error)
	LanguageName(ctx context.Context, langID int64) (string, error)
}

// Notifier fans out lifecycle notifications. Implementations are
// fire-and-forget: they log delivery failures and never surface them, so a
// slow or failing channel cannot corrupt job state.
type Notifier interface {
	BroadcastJob(ctx context.Context, job Job, excludeUserID string)
	BroadcastSMS(ctx context.Context, job Job) int
	JobAccepted(ctx context.Context, job Job)
	JobReopened(ctx context.Context, job Job)
	BookingCancelledFromPending(ctx context.Context, job Job)
	SessionEnded(ctx context.Context, job Job, translatorID, sessionTime string)
	WithdrawCancellation(ctx context.Context, job Job, translatorID string)
	CustomerCancelled(ctx context.Context, job Job, translatorID string)
	TranslatorCancelled(ctx context.Context, job Job)
	DateChanged(ctx context.Context, job Job, translatorID string, oldDue time.Time)
	TranslatorChanged(ctx context.Context, job Job, oldTranslatorID, newTranslatorID string)
	TranslatorAssigned(ctx context.Context, job Job, translatorID string)
	LanguageChanged(ctx context.Context, job Job, translatorID string, oldLanguageID int64)
	SessionStartReminder(ctx context.Context, job Job, userID string)
	JobCreatedConfirmation(ctx context.Context, job Job)
}

// OutboxWriter appends a domain event inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service orchestrates the booking lifecycle: creation, acceptance,
// cancellation, completion, and admin edits.
type Service struct {
	pool     TxBeginner
	repo     Repository
	users    UserDirectory
	notifier Notifier
	outbox   OutboxWriter
	log      *slog.Logger
	now      func() time.Time
	idGen    func() string

	cancelPhone string
}

// NewService builds the lifecycle service with its collaborators. The logger
// is required; pass slog.Default() when nothing better is wired.
func NewService(pool TxBeginner, repo Repository, users UserDirectory, notifier Notifier, outbox OutboxWriter, log *slog.Logger) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		users:    users,
		notifier: notifier,
		outbox:   outbox,
		log:      log,
		now:      time.Now,
		idGen:    func() string { return uuid.NewString() },

		cancelPhone: defaultCancellationPhone,
	}
}

// WithCancellationPhone overrides the phone number quoted to customers who
// try to cancel inside the 24h window.
func (s *Service) WithCancellationPhone(phone string) *Service {
	s.cancelPhone = phone
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides id generation, for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Get returns one job by id.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	return s.repo.GetByID(ctx, jobID)
}

func (s *Service) enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Enqueue(ctx, tx, topic, payload)
}

// currentTranslatorID returns the active assignment's translator id, or empty
// when the job has none.
func (s *Service) currentTranslatorID(ctx context.Context, jobID string) string {
	a, err := s.repo.CurrentAssignment(ctx, jobID)
	if err != nil {
		return ""
	}
	return a.UserID
}
