package calls

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo stores call events. call_events has UNIQUE (provider, external_id).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, e CallEvent) (bool, error) {
	const q = `
INSERT INTO call_events (
  id, tenant_id, integration_id, provider, external_id, direction, kind,
  from_number, to_number, started_at, ended_at, duration_seconds, result,
  extension_id, extension_name, person_id, raw, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7,
        NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, $13,
        NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, '')::json, $18)
ON CONFLICT (provider, external_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		e.ID, e.TenantID, e.IntegrationID, e.Provider, e.ExternalID, string(e.Direction), e.Kind,
		e.FromNumber, e.ToNumber, e.StartedAt, e.EndedAt, e.DurationSeconds, e.Result,
		e.ExtensionID, e.ExtensionName, e.PersonID, string(e.Raw), e.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) ListByStartRange(ctx context.Context, tenantID string, from, to time.Time) ([]CallEvent, error) {
	const q = `
SELECT id, tenant_id, integration_id, provider, external_id, direction, kind,
       COALESCE(from_number, ''), COALESCE(to_number, ''), started_at, ended_at, duration_seconds, result,
       COALESCE(extension_id, ''), COALESCE(extension_name, ''), COALESCE(person_id, ''),
       COALESCE(raw::text, ''), created_at
FROM call_events
WHERE tenant_id = $1 AND started_at >= $2 AND started_at < $3
ORDER BY started_at
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		var (
			e         CallEvent
			direction string
			raw       string
		)
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.IntegrationID, &e.Provider, &e.ExternalID, &direction, &e.Kind,
			&e.FromNumber, &e.ToNumber, &e.StartedAt, &e.EndedAt, &e.DurationSeconds, &e.Result,
			&e.ExtensionID, &e.ExtensionName, &e.PersonID,
			&raw, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Direction = Direction(direction)
		if raw != "" {
			e.Raw = []byte(raw)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
