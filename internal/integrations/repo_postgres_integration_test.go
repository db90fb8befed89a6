//go:build integration

package integrations

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync/internal/secrets"
	"callsync/pkg/testhelpers"
)

func insertIntegration(t *testing.T, repo *PostgresRepo, in Integration) {
	t.Helper()
	access, err := repo.enc.Encrypt(in.AccessToken)
	require.NoError(t, err)
	refresh, err := repo.enc.Encrypt(in.RefreshToken)
	require.NoError(t, err)

	_, err = repo.db.ExecContext(context.Background(), `
INSERT INTO integrations (id, tenant_id, provider, access_token, refresh_token, token_expires_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.TenantID, in.Provider, access, refresh, in.TokenExpiresAt, in.Active)
	require.NoError(t, err)
}

func newPostgresRepo(t *testing.T) *PostgresRepo {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	enc, err := secrets.New(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))), "")
	require.NoError(t, err)
	return NewPostgresRepo(db.DB, enc)
}

func TestPostgresRepo_TokensRoundTripEncrypted(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepo(t)
	id := uuid.NewString()
	insertIntegration(t, repo, Integration{
		ID: id, TenantID: "tenant-" + id, Provider: "ringcentral",
		AccessToken: "acc", RefreshToken: "ref", TokenExpiresAt: time.Now().Add(time.Hour), Active: true,
	})

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acc", got.AccessToken)
	assert.Equal(t, "ref", got.RefreshToken)
	assert.Nil(t, got.LastSyncAt)

	var stored string
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT access_token FROM integrations WHERE id = $1`, id).Scan(&stored))
	assert.NotContains(t, stored, "acc")

	exp := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.UpdateTokens(ctx, id, TokenUpdate{AccessToken: "acc-2", ExpiresAt: exp}, time.Now()))
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "acc-2", got.AccessToken)
	assert.Equal(t, "ref", got.RefreshToken, "empty refresh token keeps the stored one")
	assert.True(t, exp.Equal(got.TokenExpiresAt))
}

func TestPostgresRepo_AdvanceWatermarkCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepo(t)
	id := uuid.NewString()
	insertIntegration(t, repo, Integration{ID: id, TenantID: "t", Provider: "ringcentral", AccessToken: "a", RefreshToken: "r", Active: true})

	require.NoError(t, repo.RecordSyncError(ctx, id, "page 1 failed", time.Now()))

	first := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.AdvanceWatermark(ctx, id, nil, first))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, first.Equal(*got.LastSyncAt))
	assert.Empty(t, got.LastSyncError)

	assert.ErrorIs(t, repo.AdvanceWatermark(ctx, id, nil, first.Add(time.Minute)), ErrStaleWatermark)
	require.NoError(t, repo.AdvanceWatermark(ctx, id, got.LastSyncAt, first.Add(time.Minute)))
	assert.ErrorIs(t, repo.AdvanceWatermark(ctx, uuid.NewString(), nil, first), ErrNotFound)
}

func TestPostgresRepo_DisableRemovesFromActive(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepo(t)
	id := uuid.NewString()
	insertIntegration(t, repo, Integration{ID: id, TenantID: "t", Provider: "ringcentral", AccessToken: "a", RefreshToken: "r", Active: true})

	require.NoError(t, repo.Disable(ctx, id, "token refresh failed", time.Now()))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	for _, in := range active {
		assert.NotEqual(t, id, in.ID)
	}
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "token refresh failed", got.LastSyncError)
}

func TestPostgresRepo_StoresLongNonASCIIErrors(t *testing.T) {
	ctx := context.Background()
	repo := newPostgresRepo(t)
	id := uuid.NewString()
	insertIntegration(t, repo, Integration{ID: id, TenantID: "t", Provider: "ringcentral", AccessToken: "a", RefreshToken: "r", Active: true})

	body := "telephony: call-log returned HTTP 503: " + strings.Repeat("é", 600)
	require.NoError(t, repo.RecordSyncError(ctx, id, body, time.Now()))
	require.NoError(t, repo.Disable(ctx, id, body, time.Now()))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	var found *Integration
	for i := range all {
		if all[i].ID == id {
			found = &all[i]
		}
	}
	require.NotNil(t, found, "disabled integrations are still listed")
	assert.False(t, found.Active)
	assert.True(t, strings.HasPrefix(found.LastSyncError, "telephony: call-log returned HTTP 503: é"))
}
