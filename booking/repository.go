package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrJobNotFound signals the job id does not resolve.
	ErrJobNotFound = errors.New("booking: job not found")
	// ErrNoAssignment signals the job has no matching assignment row.
	ErrNoAssignment = errors.New("booking: no assignment")
)

const jobColumns = `
	id, user_id, from_language_id, immediate, due, duration, status, gender,
	certified, job_type, customer_phone_type, customer_physical_type, town,
	address, instructions, user_email, reference, admin_comments, flagged,
	manually_handled, by_admin, ignore_flag, ignore_expired, session_time,
	distance, travel_time, created_at, will_expire_at, end_at, withdraw_at
`

// Repository is the data-access surface the lifecycle service needs. Writes
// run inside the caller's transaction so job and assignment rows stay one
// consistency unit.
type Repository interface {
	GetByID(ctx context.Context, id string) (Job, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Job, error)
	Create(ctx context.Context, tx pgx.Tx, job Job) (Job, error)
	Update(ctx context.Context, tx pgx.Tx, job Job) (Job, error)
	CurrentAssignment(ctx context.Context, jobID string) (Assignment, error)
	LatestCompletedAssignment(ctx context.Context, jobID string) (Assignment, error)
	CreateAssignment(ctx context.Context, tx pgx.Tx, jobID, userID string) (Assignment, error)
	CancelAssignment(ctx context.Context, tx pgx.Tx, assignmentID string, at time.Time) error
	CompleteAssignment(ctx context.Context, tx pgx.Tx, assignmentID string, at time.Time, by string) error
	DeleteAssignment(ctx context.Context, tx pgx.Tx, jobID, userID string) error
	HasOverlappingBooking(ctx context.Context, translatorID string, due time.Time, duration int) (bool, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("booking: get job: %w", err)
	}
	return job, nil
}

// GetForUpdate loads the job with a row lock held for the rest of the
// transaction, serialising concurrent accepts and edits on the same job.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("booking: get job for update: %w", err)
	}
	return job, nil
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, job Job) (Job, error) {
	query := `
		INSERT INTO jobs (
			id, user_id, from_language_id, immediate, due, duration, status, gender,
			certified, job_type, customer_phone_type, customer_physical_type, town,
			address, instructions, user_email, reference, admin_comments, flagged,
			manually_handled, by_admin, ignore_flag, ignore_expired, session_time,
			distance, travel_time, created_at, will_expire_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		RETURNING ` + jobColumns

	row := tx.QueryRow(ctx, query,
		job.ID, job.UserID, job.LanguageID, job.Immediate, job.Due, job.Duration,
		job.Status, job.Gender, job.Certified, job.JobType, job.CustomerPhoneType,
		job.CustomerPhysicalType, job.Town, job.Address, job.Instructions,
		job.UserEmail, job.Reference, job.AdminComments, job.Flagged,
		job.ManuallyHandled, job.ByAdmin, job.Ignore, job.IgnoreExpired,
		job.SessionTime, job.Distance, job.TravelTime, job.CreatedAt, job.WillExpireAt,
	)

	created, err := scanJob(row)
	if err != nil {
		return Job{}, fmt.Errorf("booking: insert job: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, job Job) (Job, error) {
	query := `
		UPDATE jobs SET
			from_language_id=$2, immediate=$3, due=$4, duration=$5, status=$6,
			gender=$7, certified=$8, job_type=$9, customer_phone_type=$10,
			customer_physical_type=$11, town=$12, address=$13, instructions=$14,
			user_email=$15, reference=$16, admin_comments=$17, flagged=$18,
			manually_handled=$19, by_admin=$20, ignore_flag=$21, ignore_expired=$22,
			session_time=$23, distance=$24, travel_time=$25, created_at=$26,
			will_expire_at=$27, end_at=$28, withdraw_at=$29
		WHERE id=$1
		RETURNING ` + jobColumns

	row := tx.QueryRow(ctx, query,
		job.ID, job.LanguageID, job.Immediate, job.Due, job.Duration, job.Status,
		job.Gender, job.Certified, job.JobType, job.CustomerPhoneType,
		job.CustomerPhysicalType, job.Town, job.Address, job.Instructions,
		job.UserEmail, job.Reference, job.AdminComments, job.Flagged,
		job.ManuallyHandled, job.ByAdmin, job.Ignore, job.IgnoreExpired,
		job.SessionTime, job.Distance, job.TravelTime, job.CreatedAt,
		job.WillExpireAt, job.EndAt, job.WithdrawAt,
	)

	updated, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("booking: update job: %w", err)
	}
	return updated, nil
}

// CurrentAssignment returns the job's active assignment: the one row with both
// cancel_at and completed_at unset.
func (r *PGRepository) CurrentAssignment(ctx context.Context, jobID string) (Assignment, error) {
	const query = `
		SELECT id, job_id, user_id, created_at, cancel_at, completed_at, completed_by
		FROM translator_assignments
		WHERE job_id = $1 AND cancel_at IS NULL AND completed_at IS NULL
		LIMIT 1
	`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNoAssignment
		}
		return Assignment{}, fmt.Errorf("booking: current assignment: %w", err)
	}
	return a, nil
}

// LatestCompletedAssignment is the admin-edit fallback when no active
// assignment exists.
func (r *PGRepository) LatestCompletedAssignment(ctx context.Context, jobID string) (Assignment, error) {
	const query = `
		SELECT id, job_id, user_id, created_at, cancel_at, completed_at, completed_by
		FROM translator_assignments
		WHERE job_id = $1 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`
	a, err := scanAssignment(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNoAssignment
		}
		return Assignment{}, fmt.Errorf("booking: latest completed assignment: %w", err)
	}
	return a, nil
}

func (r *PGRepository) CreateAssignment(ctx context.Context, tx pgx.Tx, jobID, userID string) (Assignment, error) {
	const query = `
		INSERT INTO translator_assignments (job_id, user_id)
		VALUES ($1, $2)
		RETURNING id, job_id, user_id, created_at, cancel_at, completed_at, completed_by
	`
	a, err := scanAssignment(tx.QueryRow(ctx, query, jobID, userID))
	if err != nil {
		return Assignment{}, fmt.Errorf("booking: insert assignment: %w", err)
	}
	return a, nil
}

func (r *PGRepository) CancelAssignment(ctx context.Context, tx pgx.Tx, assignmentID string, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE translator_assignments SET cancel_at = $2 WHERE id = $1`, assignmentID, at)
	if err != nil {
		return fmt.Errorf("booking: cancel assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoAssignment
	}
	return nil
}

func (r *PGRepository) CompleteAssignment(ctx context.Context, tx pgx.Tx, assignmentID string, at time.Time, by string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE translator_assignments SET completed_at = $2, completed_by = $3 WHERE id = $1
	`, assignmentID, at, by)
	if err != nil {
		return fmt.Errorf("booking: complete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoAssignment
	}
	return nil
}

// DeleteAssignment removes a translator's assignment row outright. Only the
// non-customer cancellation path and the admin un-assign use it; every other
// replacement cancels the row instead.
func (r *PGRepository) DeleteAssignment(ctx context.Context, tx pgx.Tx, jobID, userID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM translator_assignments WHERE job_id = $1 AND user_id = $2
	`, jobID, userID)
	if err != nil {
		return fmt.Errorf("booking: delete assignment: %w", err)
	}
	return nil
}

// HasOverlappingBooking reports whether the translator already holds an
// assigned or started booking whose session window overlaps the given one.
func (r *PGRepository) HasOverlappingBooking(ctx context.Context, translatorID string, due time.Time, duration int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM jobs j
			JOIN translator_assignments a ON a.job_id = j.id
			WHERE a.user_id = $1
			  AND a.cancel_at IS NULL AND a.completed_at IS NULL
			  AND j.status IN ('assigned', 'started')
			  AND j.due < $3
			  AND j.due + make_interval(mins => j.duration) > $2
		)
	`
	end := due.Add(time.Duration(duration) * time.Minute)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, translatorID, due, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("booking: check overlap: %w", err)
	}
	return exists, nil
}

// PendingJobs lists open jobs a translator with the given type, languages and
// gender could take, oldest first. A nil gender on the job means the customer
// has no preference.
func (r *PGRepository) PendingJobs(ctx context.Context, jobType JobType, languageIDs []int64, gender *string) ([]Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending'
		  AND ignore_expired = false
		  AND job_type = $1
		  AND from_language_id = ANY($2)
		  AND (gender IS NULL OR gender = $3)
		ORDER BY due ASC
	`
	rows, err := r.pool.Query(ctx, query, string(jobType), languageIDs, gender)
	if err != nil {
		return nil, fmt.Errorf("booking: list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list pending jobs: %w", err)
	}
	return jobs, nil
}

// ExpirePending times out every pending job whose acceptance window has
// closed and returns the affected rows so callers can notify the customers.
func (r *PGRepository) ExpirePending(ctx context.Context, now time.Time) ([]Job, error) {
	query := `
		UPDATE jobs
		SET status = 'timedout'
		WHERE status = 'pending'
		  AND will_expire_at <= $1
		RETURNING ` + jobColumns
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("booking: expire pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan expired job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: expire pending jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.UserID, &j.LanguageID, &j.Immediate, &j.Due, &j.Duration,
		&j.Status, &j.Gender, &j.Certified, &j.JobType, &j.CustomerPhoneType,
		&j.CustomerPhysicalType, &j.Town, &j.Address, &j.Instructions,
		&j.UserEmail, &j.Reference, &j.AdminComments, &j.Flagged,
		&j.ManuallyHandled, &j.ByAdmin, &j.Ignore, &j.IgnoreExpired,
		&j.SessionTime, &j.Distance, &j.TravelTime, &j.CreatedAt,
		&j.WillExpireAt, &j.EndAt, &j.WithdrawAt,
	)
	return j, err
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.JobID, &a.UserID, &a.CreatedAt, &a.CancelAt, &a.CompletedAt, &a.CompletedBy)
	return a, err
}
