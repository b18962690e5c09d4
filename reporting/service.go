// Package reporting serves the read-only admin and dashboard queries: a
// user's open bookings, paginated history, and the filtered admin job lists.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tolkflow/booking"
	"tolkflow/user"
)

// PageSize is the fixed page size for every paginated listing.
const PageSize = 15

// ErrNotAuthorized signals the caller's role cannot see the admin listings.
var ErrNotAuthorized = errors.New("reporting: not authorized")

const jobColumns = `
	j.id, j.user_id, j.from_language_id, j.immediate, j.due, j.duration,
	j.status, j.gender, j.certified, j.job_type, j.customer_phone_type,
	j.customer_physical_type, j.town, j.address, j.instructions, j.user_email,
	j.reference, j.admin_comments, j.flagged, j.manually_handled, j.by_admin,
	j.ignore_flag, j.ignore_expired, j.session_time, j.distance,
	j.travel_time, j.created_at, j.will_expire_at, j.end_at, j.withdraw_at
`

// UserJobs is a user's open bookings, split into emergency and scheduled.
type UserJobs struct {
	Emergency []booking.Job
	Normal    []booking.Job
	UserType  string
}

// Page is one page of a job listing.
type Page struct {
	Jobs       []booking.Job
	Page       int
	TotalPages int
	Total      int
}

// Filters narrows the admin job listings. Zero values mean "no filter".
type Filters struct {
	LanguageIDs     []int64
	Statuses        []string
	JobTypes        []string
	CustomerEmail   string
	TranslatorEmail string

	// TimeType selects which timestamp From/To apply to: "created" filters on
	// creation time, anything else on the due time.
	TimeType string
	From     *time.Time
	To       *time.Time

	Page int
}

// Service runs the reporting queries.
type Service struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	now  func() time.Time
}

func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	return &Service{pool: pool, log: log, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// JobsForUser lists a user's open bookings. Customers see the jobs they
// created; translators see the jobs they currently hold.
func (s *Service) JobsForUser(ctx context.Context, u user.Profile) (UserJobs, error) {
	var (
		query string
		args  []any
	)
	switch u.Role {
	case user.RoleCustomer:
		query = `
			SELECT ` + jobColumns + `
			FROM jobs j
			WHERE j.user_id = $1 AND j.status IN ('pending', 'assigned', 'started')
			ORDER BY j.due ASC
		`
		args = []any{u.ID}
	case user.RoleTranslator:
		query = `
			SELECT ` + jobColumns + `
			FROM jobs j
			JOIN translator_assignments a ON a.job_id = j.id
			WHERE a.user_id = $1
			  AND a.cancel_at IS NULL AND a.completed_at IS NULL
			  AND j.status IN ('assigned', 'started')
			ORDER BY j.due ASC
		`
		args = []any{u.ID}
	default:
		return UserJobs{}, nil
	}

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return UserJobs{}, err
	}

	out := UserJobs{UserType: string(u.Role)}
	for _, j := range jobs {
		if j.Immediate {
			out.Emergency = append(out.Emergency, j)
		} else {
			out.Normal = append(out.Normal, j)
		}
	}
	return out, nil
}

// History lists a user's finished bookings, newest first, 15 per page.
func (s *Service) History(ctx context.Context, u user.Profile, page int) (Page, error) {
	if page < 1 {
		page = 1
	}

	var (
		countQuery, query string
		args              []any
	)
	switch u.Role {
	case user.RoleCustomer:
		countQuery = `
			SELECT count(*) FROM jobs j
			WHERE j.user_id = $1
			  AND j.status IN ('completed', 'withdrawbefore24', 'withdrawafter24', 'timedout')
		`
		query = `
			SELECT ` + jobColumns + `
			FROM jobs j
			WHERE j.user_id = $1
			  AND j.status IN ('completed', 'withdrawbefore24', 'withdrawafter24', 'timedout')
			ORDER BY j.due DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{u.ID}
	case user.RoleTranslator:
		countQuery = `
			SELECT count(*) FROM jobs j
			JOIN translator_assignments a ON a.job_id = j.id
			WHERE a.user_id = $1 AND a.completed_at IS NOT NULL
		`
		query = `
			SELECT ` + jobColumns + `
			FROM jobs j
			JOIN translator_assignments a ON a.job_id = j.id
			WHERE a.user_id = $1 AND a.completed_at IS NOT NULL
			ORDER BY j.due DESC
			LIMIT $2 OFFSET $3
		`
		args = []any{u.ID}
	default:
		return Page{Page: page}, nil
	}

	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("reporting: count history: %w", err)
	}

	jobs, err := s.queryJobs(ctx, query, u.ID, PageSize, (page-1)*PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Jobs:       jobs,
		Page:       page,
		Total:      total,
		TotalPages: (total + PageSize - 1) / PageSize,
	}, nil
}

// All lists jobs for the admin dashboard, newest first. Only superadmins may
// call it.
func (s *Service) All(ctx context.Context, actor user.Profile, filters Filters) (Page, error) {
	if actor.Role != user.RoleSuperAdmin {
		return Page{}, ErrNotAuthorized
	}
	where, args := buildFilters(filters, []string{"j.ignore_flag = false"}, nil)
	return s.pagedJobs(ctx, where, args, filters.Page, "j.created_at DESC")
}

// Alerts lists jobs whose recorded session ran at least twice the booked
// duration, for manual review. Only superadmins may call it.
func (s *Service) Alerts(ctx context.Context, actor user.Profile, filters Filters) (Page, error) {
	if actor.Role != user.RoleSuperAdmin {
		return Page{}, ErrNotAuthorized
	}

	overruns, err := s.overrunJobIDs(ctx)
	if err != nil {
		return Page{}, err
	}
	if len(overruns) == 0 {
		return Page{Page: maxPage(filters.Page)}, nil
	}

	where := []string{"j.ignore_flag = false"}
	args := []any{overruns}
	where = append(where, fmt.Sprintf("j.id = ANY($%d)", len(args)))
	where, args = buildFilters(filters, where, args)
	return s.pagedJobs(ctx, where, args, filters.Page, "j.created_at DESC")
}

// ExpiredNotAccepted lists still-pending future bookings that already passed
// their expiry timestamp without a translator. Admins and superadmins only.
func (s *Service) ExpiredNotAccepted(ctx context.Context, actor user.Profile, filters Filters) (Page, error) {
	if !actor.Role.IsAdmin() {
		return Page{}, ErrNotAuthorized
	}

	where := []string{
		"j.ignore_expired = false",
		"j.status = 'pending'",
	}
	args := []any{s.now()}
	where = append(where, fmt.Sprintf("j.due >= $%d", len(args)))
	where, args = buildFilters(filters, where, args)
	return s.pagedJobs(ctx, where, args, filters.Page, "j.created_at DESC")
}

// SetIgnore hides a job from the admin dashboard listing.
func (s *Service) SetIgnore(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE jobs SET ignore_flag = true WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("reporting: set ignore: %w", err)
	}
	return nil
}

// SetIgnoreExpired hides a job from the expired-not-accepted listing.
func (s *Service) SetIgnoreExpired(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE jobs SET ignore_expired = true WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("reporting: set ignore expired: %w", err)
	}
	return nil
}

// overrunJobIDs finds jobs whose session ran at least twice the booked
// duration. Session times are stored as "H:MM:SS" text, so the comparison
// happens here rather than in SQL.
func (s *Service) overrunJobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, duration, session_time FROM jobs WHERE session_time <> ''`)
	if err != nil {
		return nil, fmt.Errorf("reporting: list session times: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var (
			id          string
			duration    int
			sessionTime string
		)
		if err := rows.Scan(&id, &duration, &sessionTime); err != nil {
			return nil, fmt.Errorf("reporting: scan session time: %w", err)
		}
		minutes, ok := sessionMinutes(sessionTime)
		if !ok {
			continue
		}
		if minutes >= float64(duration*2) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: list session times: %w", err)
	}
	return ids, nil
}

func (s *Service) pagedJobs(ctx context.Context, where []string, args []any, page int, order string) (Page, error) {
	page = maxPage(page)
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT count(*) FROM jobs j WHERE ` + clause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("reporting: count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE ` + clause +
		` ORDER BY ` + order +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, PageSize, (page-1)*PageSize)

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Jobs:       jobs,
		Page:       page,
		Total:      total,
		TotalPages: (total + PageSize - 1) / PageSize,
	}, nil
}

// buildFilters appends the optional admin filters to a WHERE clause under
// construction.
func buildFilters(f Filters, where []string, args []any) ([]string, []any) {
	if len(f.LanguageIDs) > 0 {
		args = append(args, f.LanguageIDs)
		where = append(where, fmt.Sprintf("j.from_language_id = ANY($%d)", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		where = append(where, fmt.Sprintf("j.status = ANY($%d)", len(args)))
	}
	if len(f.JobTypes) > 0 {
		args = append(args, f.JobTypes)
		where = append(where, fmt.Sprintf("j.job_type = ANY($%d)", len(args)))
	}
	if f.CustomerEmail != "" {
		args = append(args, f.CustomerEmail)
		where = append(where, fmt.Sprintf(
			"j.user_id IN (SELECT id FROM users WHERE email = $%d)", len(args)))
	}
	if f.TranslatorEmail != "" {
		args = append(args, f.TranslatorEmail)
		where = append(where, fmt.Sprintf(
			"j.id IN (SELECT a.job_id FROM translator_assignments a JOIN users u ON u.id = a.user_id WHERE u.email = $%d)", len(args)))
	}

	column := "j.due"
	if f.TimeType == "created" {
		column = "j.created_at"
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("%s >= $%d", column, len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("%s <= $%d", column, len(args)))
	}
	return where, args
}

func (s *Service) queryJobs(ctx context.Context, query string, args ...any) ([]booking.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reporting: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []booking.Job
	for rows.Next() {
		var j booking.Job
		err := rows.Scan(
			&j.ID, &j.UserID, &j.LanguageID, &j.Immediate, &j.Due, &j.Duration,
			&j.Status, &j.Gender, &j.Certified, &j.JobType, &j.CustomerPhoneType,
			&j.CustomerPhysicalType, &j.Town, &j.Address, &j.Instructions,
			&j.UserEmail, &j.Reference, &j.AdminComments, &j.Flagged,
			&j.ManuallyHandled, &j.ByAdmin, &j.Ignore, &j.IgnoreExpired,
			&j.SessionTime, &j.Distance, &j.TravelTime, &j.CreatedAt,
			&j.WillExpireAt, &j.EndAt, &j.WithdrawAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reporting: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: query jobs: %w", err)
	}
	return jobs, nil
}

// sessionMinutes parses a "H:MM:SS" session time into minutes.
func sessionMinutes(sessionTime string) (float64, bool) {
	parts := strings.Split(sessionTime, ":")
	if len(parts) < 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h*60+m) + float64(sec)/60, true
}

func maxPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
