package booking

import "time"

// Status enumerates the job lifecycle states.
type Status string

const (
	StatusPending        Status = "pending"
	StatusAssigned       Status = "assigned"
	StatusStarted        Status = "started"
	StatusCompleted      Status = "completed"
	StatusWithdrawBefore Status = "withdrawbefore24"
	StatusWithdrawAfter  Status = "withdrawafter24"
	StatusTimedOut       Status = "timedout"
	// StatusNotCarriedOut marks sessions where the customer never called in.
	StatusNotCarriedOut Status = "not_carried_out_customer"
)

// Terminal reports whether the status ends the lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusWithdrawBefore, StatusWithdrawAfter, StatusTimedOut, StatusNotCarriedOut:
		return true
	default:
		return false
	}
}

// Certified encodes the certification requirement stored on a job.
type Certified string

const (
	CertifiedNone    Certified = ""
	CertifiedNormal  Certified = "normal"
	CertifiedYes     Certified = "yes"
	CertifiedBoth    Certified = "both"
	CertifiedLaw     Certified = "law"
	CertifiedNLaw    Certified = "n_law"
	CertifiedHealth  Certified = "health"
	CertifiedNHealth Certified = "n_health"
)

// JobType classifies who pays for the booking, derived from the requester's
// consumer category.
type JobType string

const (
	JobTypeRWS     JobType = "rws"
	JobTypeUnpaid  JobType = "unpaid"
	JobTypePaid    JobType = "paid"
	JobTypeUnknown JobType = "unknown"
)

// JobTypeForConsumer maps a customer's consumer category to the job type.
func JobTypeForConsumer(consumerType string) JobType {
	switch consumerType {
	case "rwsconsumer":
		return JobTypeRWS
	case "ngo":
		return JobTypeUnpaid
	case "paid":
		return JobTypePaid
	default:
		return JobTypeUnknown
	}
}

// Job is a single interpretation booking request.
type Job struct {
	ID         string
	UserID     string
	LanguageID int64

	Immediate bool
	Due       time.Time
	Duration  int // minutes

	Status    Status
	Gender    *string
	Certified Certified
	JobType   JobType

	CustomerPhoneType    bool
	CustomerPhysicalType bool

	Town         string
	Address      string
	Instructions string

	// UserEmail overrides the requester's account email for job mail when set.
	UserEmail     string
	Reference     string
	AdminComments string

	Flagged         bool
	ManuallyHandled bool
	ByAdmin         bool
	Ignore          bool
	IgnoreExpired   bool

	SessionTime string
	Distance    string
	TravelTime  string

	CreatedAt    time.Time
	WillExpireAt time.Time
	EndAt        *time.Time
	WithdrawAt   *time.Time
}

// Assignment links one translator to one job for one period of responsibility.
// At most one assignment per job has both CancelAt and CompletedAt unset; that
// row is the current translator.
type Assignment struct {
	ID          string
	JobID       string
	UserID      string
	CreatedAt   time.Time
	CancelAt    *time.Time
	CompletedAt *time.Time
	CompletedBy *string
}

// Active reports whether this assignment is the job's current one.
func (a Assignment) Active() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}
