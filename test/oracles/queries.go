// Package oracles defines the invariant checks the stress test evaluates
// while the actors hammer the schema. An oracle query returning any row is a
// violated invariant.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_assignment_per_job",
			SQL: `SELECT job_id, COUNT(*) FROM translator_assignments
                  WHERE cancel_at IS NULL AND completed_at IS NULL
                  GROUP BY job_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_assigned_jobs_have_holder",
			SQL: `SELECT j.id, j.status FROM jobs j
                  WHERE j.status IN ('assigned', 'started')
                    AND NOT EXISTS (
                        SELECT 1 FROM translator_assignments a
                        WHERE a.job_id = j.id
                          AND a.cancel_at IS NULL AND a.completed_at IS NULL)`,
		},
		{
			Name: "O3_open_jobs_have_no_holder",
			SQL: `SELECT j.id, j.status FROM jobs j
                  JOIN translator_assignments a ON a.job_id = j.id
                  WHERE j.status IN ('pending', 'timedout', 'withdrawbefore24', 'withdrawafter24')
                    AND a.cancel_at IS NULL AND a.completed_at IS NULL`,
		},
		{
			Name: "O4_completed_jobs_have_session",
			SQL: `SELECT id FROM jobs
                  WHERE status = 'completed'
                    AND (session_time = '' OR end_at IS NULL)`,
		},
		{
			Name: "O5_withdrawn_jobs_stamped",
			SQL: `SELECT id FROM jobs
                  WHERE status IN ('withdrawbefore24', 'withdrawafter24')
                    AND withdraw_at IS NULL`,
		},
		{
			Name: "O6_status_closed_set",
			SQL: `SELECT id, status FROM jobs
                  WHERE status NOT IN ('pending', 'assigned', 'started', 'completed',
                                       'timedout', 'withdrawbefore24', 'withdrawafter24',
                                       'not_carried_out_customer')`,
		},
		{
			Name: "O7_timeouts_only_past_expiry",
			SQL: `SELECT id FROM jobs
                  WHERE status = 'timedout' AND admin_comments = ''
                    AND will_expire_at > now()`,
		},
		{
			Name: "O8_outbox_drains",
			SQL: `SELECT id, topic FROM outbox
                  WHERE published_at IS NULL
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O9_outbox_published_after_created",
			SQL: `SELECT id, topic FROM outbox
                  WHERE published_at IS NOT NULL AND published_at < created_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
