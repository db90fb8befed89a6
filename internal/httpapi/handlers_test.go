package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync/internal/integrations"
	"callsync/internal/syncjob"
)

type fakeRunner struct {
	sum    syncjob.Summary
	ctxErr error
}

func (f *fakeRunner) RunActive(ctx context.Context) syncjob.Summary {
	f.ctxErr = ctx.Err()
	return f.sum
}

type fakeLister struct {
	list []integrations.Integration
	err  error
}

func (f fakeLister) List(context.Context) ([]integrations.Integration, error) {
	return f.list, f.err
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Health)
	r.POST("/v1/jobs/call-sync", h.TriggerCallSync)
	r.GET("/v1/integrations", h.ListIntegrations)
	return r
}

func TestTriggerCallSync_ReturnsSummary(t *testing.T) {
	runner := &fakeRunner{sum: syncjob.Summary{
		Success:     true,
		Processed:   2,
		CallsSynced: 7,
		Results: []syncjob.IntegrationResult{
			{TenantID: "t1", IntegrationID: "i1", Status: syncjob.StatusSynced, Synced: 7},
			{TenantID: "t2", IntegrationID: "i2", Status: syncjob.StatusDisabled, Error: "token refresh failed"},
		},
	}}
	r := newRouter(Handlers{Job: runner})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/jobs/call-sync", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, runner.ctxErr)

	var body struct {
		Success     bool `json:"success"`
		Processed   int  `json:"processed"`
		CallsSynced int  `json:"calls_synced"`
		Results     []struct {
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Processed)
	assert.Equal(t, 7, body.CallsSynced)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "disabled", body.Results[1].Status)
}

func TestTriggerCallSync_LoadFailureIs500(t *testing.T) {
	r := newRouter(Handlers{Job: &fakeRunner{sum: syncjob.Summary{Success: false, Error: "db down"}}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/jobs/call-sync", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestListIntegrations_OmitsTokens(t *testing.T) {
	mark := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	r := newRouter(Handlers{Integrations: fakeLister{list: []integrations.Integration{{
		ID: "i1", TenantID: "t1", Provider: "ringcentral",
		AccessToken: "super-secret-access", RefreshToken: "super-secret-refresh",
		LastSyncAt: &mark, Active: true,
	}}}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/integrations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tenant_id":"t1"`)
	assert.NotContains(t, w.Body.String(), "super-secret")
}

func TestListIntegrations_IncludesDisabled(t *testing.T) {
	repo := integrations.NewMemoryRepo(
		integrations.Integration{ID: "i1", TenantID: "t1", Provider: "ringcentral", Active: true},
		integrations.Integration{ID: "i2", TenantID: "t2", Provider: "ringcentral", Active: false,
			LastSyncError: "integrations: token refresh failed: invalid_grant"},
	)
	r := newRouter(Handlers{Integrations: repo})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/integrations", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Integrations []struct {
			ID            string `json:"id"`
			Active        *bool  `json:"active"`
			LastSyncError string `json:"last_sync_error"`
		} `json:"integrations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Integrations, 2)

	assert.Equal(t, "i1", body.Integrations[0].ID)
	require.NotNil(t, body.Integrations[0].Active)
	assert.True(t, *body.Integrations[0].Active)

	assert.Equal(t, "i2", body.Integrations[1].ID)
	require.NotNil(t, body.Integrations[1].Active)
	assert.False(t, *body.Integrations[1].Active)
	assert.Contains(t, body.Integrations[1].LastSyncError, "invalid_grant")
}

func TestListIntegrations_Error(t *testing.T) {
	r := newRouter(Handlers{Integrations: fakeLister{err: errors.New("boom")}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/integrations", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth_WithoutDB(t *testing.T) {
	r := newRouter(Handlers{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
