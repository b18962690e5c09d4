package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested profile does not exist.
	ErrNotFound = errors.New("user: not found")
	// ErrLanguageNotFound signals an unknown language id.
	ErrLanguageNotFound = errors.New("user: language not found")
)

const profileColumns = `
	id, email, name, mobile, role, active, gender, city,
	consumer_type, customer_type, translator_type, translator_levels,
	not_get_emergency, not_get_notification, not_get_nighttime,
	created_at, updated_at
`

// Repository provides read access to user profiles and their sub-relations
// (languages, towns, blacklist).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("user: query by id: %w", err)
	}
	return p, nil
}

// GetByEmail fetches a profile by email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE email = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("user: query by email: %w", err)
	}
	return p, nil
}

// ActiveTranslators returns every active translator-role profile, optionally
// excluding one user id (used on reassignment broadcasts).
func (r *Repository) ActiveTranslators(ctx context.Context, excludeUserID string) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE role = 'translator' AND active`
	args := []any{}
	if excludeUserID != "" {
		query += ` AND id != $1`
		args = append(args, excludeUserID)
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("user: list active translators: %w", err)
	}
	defer rows.Close()

	out := make([]Profile, 0, 16)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("user: scan translator: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate translators: %w", err)
	}
	return out, nil
}

// BlacklistedIDs returns the translator ids a customer has excluded.
func (r *Repository) BlacklistedIDs(ctx context.Context, customerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT translator_id FROM user_blacklist WHERE user_id = $1`, customerID)
	if err != nil {
		return nil, fmt.Errorf("user: query blacklist: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("user: scan blacklist: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate blacklist: %w", err)
	}
	return ids, nil
}

// LanguagesOf returns the language ids a translator works in.
func (r *Repository) LanguagesOf(ctx context.Context, userID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT lang_id FROM user_languages WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("user: query languages: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("user: scan language: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user: iterate languages: %w", err)
	}
	return ids, nil
}

// TownsCompatible reports whether the two users share at least one town
// affiliation, the gate for in-person bookings.
func (r *Repository) TownsCompatible(ctx context.Context, customerID, translatorID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1
			FROM user_towns c
			JOIN user_towns t ON t.town_id = c.town_id
			WHERE c.user_id = $1 AND t.user_id = $2
		)
	`
	var ok bool
	if err := r.pool.QueryRow(ctx, query, customerID, translatorID).Scan(&ok); err != nil {
		return false, fmt.Errorf("user: check towns: %w", err)
	}
	return ok, nil
}

// LanguageName resolves a language id to its display name.
func (r *Repository) LanguageName(ctx context.Context, langID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT language FROM languages WHERE id = $1`, langID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrLanguageNotFound
		}
		return "", fmt.Errorf("user: query language name: %w", err)
	}
	return name, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.Mobile,
		&p.Role,
		&p.Active,
		&p.Gender,
		&p.City,
		&p.ConsumerType,
		&p.CustomerType,
		&p.TranslatorType,
		&p.TranslatorLevels,
		&p.NotGetEmergency,
		&p.NotGetNotification,
		&p.NotGetNighttime,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}
