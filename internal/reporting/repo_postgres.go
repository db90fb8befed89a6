package reporting

import (
	"context"
	"database/sql"

	"callsync/pkg/utils"
)

// PostgresRepo stores daily_metrics with UNIQUE (tenant_id, person_id, metric_date).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// UpsertDaily writes the whole tenant-day in one transaction so readers never see half a rollup.
func (r *PostgresRepo) UpsertDaily(ctx context.Context, rows []DailyMetric) error {
	const q = `
INSERT INTO daily_metrics (
  id, tenant_id, person_id, metric_date,
  total_calls, inbound_calls, outbound_calls, answered_calls, missed_calls, talk_seconds,
  computed_at
)
VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id, person_id, metric_date) DO UPDATE SET
  total_calls = EXCLUDED.total_calls,
  inbound_calls = EXCLUDED.inbound_calls,
  outbound_calls = EXCLUDED.outbound_calls,
  answered_calls = EXCLUDED.answered_calls,
  missed_calls = EXCLUDED.missed_calls,
  talk_seconds = EXCLUDED.talk_seconds,
  computed_at = EXCLUDED.computed_at
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range rows {
			if _, err := stmt.ExecContext(ctx,
				m.ID, m.TenantID, m.PersonID, m.MetricDate,
				m.TotalCalls, m.InboundCalls, m.OutboundCalls, m.AnsweredCalls, m.MissedCalls, m.TalkSeconds,
				m.ComputedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) ListDaily(ctx context.Context, tenantID, date string) ([]DailyMetric, error) {
	const q = `
SELECT id, tenant_id, person_id, to_char(metric_date, 'YYYY-MM-DD'),
       total_calls, inbound_calls, outbound_calls, answered_calls, missed_calls, talk_seconds,
       computed_at
FROM daily_metrics
WHERE tenant_id = $1 AND metric_date = $2::date
ORDER BY person_id
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyMetric
	for rows.Next() {
		var m DailyMetric
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.PersonID, &m.MetricDate,
			&m.TotalCalls, &m.InboundCalls, &m.OutboundCalls, &m.AnsweredCalls, &m.MissedCalls, &m.TalkSeconds,
			&m.ComputedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
