package integrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callsync/internal/secrets"
)

// PostgresRepo stores integrations in Postgres.
// Token columns are sealed with the encryptor when one is configured; legacy plaintext rows still read.
type PostgresRepo struct {
	db  *sql.DB
	enc *secrets.Encryptor
}

func NewPostgresRepo(db *sql.DB, enc *secrets.Encryptor) *PostgresRepo {
	return &PostgresRepo{db: db, enc: enc}
}

const selectIntegration = `
SELECT id, tenant_id, provider, access_token, refresh_token, token_expires_at,
       last_sync_at, COALESCE(last_sync_error, ''), active, created_at, updated_at
FROM integrations
`

func (r *PostgresRepo) ListActive(ctx context.Context) ([]Integration, error) {
	return r.query(ctx, selectIntegration+`WHERE active = TRUE ORDER BY id`)
}

func (r *PostgresRepo) List(ctx context.Context) ([]Integration, error) {
	return r.query(ctx, selectIntegration+`ORDER BY tenant_id, id`)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Integration, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		in, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Integration, error) {
	in, err := r.scan(r.db.QueryRowContext(ctx, selectIntegration+`WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Integration{}, ErrNotFound
	}
	return in, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepo) scan(s rowScanner) (Integration, error) {
	var (
		in         Integration
		lastSyncAt sql.NullTime
	)
	if err := s.Scan(
		&in.ID, &in.TenantID, &in.Provider,
		&in.AccessToken, &in.RefreshToken, &in.TokenExpiresAt,
		&lastSyncAt, &in.LastSyncError, &in.Active,
		&in.CreatedAt, &in.UpdatedAt,
	); err != nil {
		return Integration{}, err
	}
	if lastSyncAt.Valid {
		t := lastSyncAt.Time.UTC()
		in.LastSyncAt = &t
	}

	var err error
	if in.AccessToken, err = r.enc.Decrypt(in.AccessToken); err != nil {
		return Integration{}, fmt.Errorf("integrations: decrypt access token for %s: %w", in.ID, err)
	}
	if in.RefreshToken, err = r.enc.Decrypt(in.RefreshToken); err != nil {
		return Integration{}, fmt.Errorf("integrations: decrypt refresh token for %s: %w", in.ID, err)
	}
	return in, nil
}

func (r *PostgresRepo) UpdateTokens(ctx context.Context, id string, u TokenUpdate, now time.Time) error {
	if u.AccessToken == "" {
		return ErrInvalidArgument
	}
	access, err := r.enc.Encrypt(u.AccessToken)
	if err != nil {
		return err
	}
	refresh := ""
	if u.RefreshToken != "" {
		if refresh, err = r.enc.Encrypt(u.RefreshToken); err != nil {
			return err
		}
	}

	const q = `
UPDATE integrations
SET access_token = $2,
    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
    token_expires_at = $4,
    updated_at = $5
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, access, refresh, u.ExpiresAt, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) Disable(ctx context.Context, id, reason string, now time.Time) error {
	const q = `
UPDATE integrations
SET active = FALSE, last_sync_error = $2, updated_at = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, truncateMessage(reason), now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) RecordSyncError(ctx context.Context, id, message string, now time.Time) error {
	const q = `UPDATE integrations SET last_sync_error = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, truncateMessage(message), now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AdvanceWatermark moves last_sync_at only if it still equals expected.
// A concurrent run that already advanced it makes this a no-op reported as ErrStaleWatermark.
func (r *PostgresRepo) AdvanceWatermark(ctx context.Context, id string, expected *time.Time, next time.Time) error {
	var prev sql.NullTime
	if expected != nil {
		prev = sql.NullTime{Time: *expected, Valid: true}
	}

	const q = `
UPDATE integrations
SET last_sync_at = $3, last_sync_error = NULL, updated_at = $3
WHERE id = $1 AND last_sync_at IS NOT DISTINCT FROM $2::timestamptz
`
	res, err := r.db.ExecContext(ctx, q, id, prev, next)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM integrations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleWatermark
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
