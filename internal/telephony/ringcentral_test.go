package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newTestClient(t *testing.T, h http.Handler) *RingCentralClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewRingCentralClient(RingCentralConfig{
		BaseURL:      srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestFetchCallLog_DecodesPage(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/call-log", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-03-01T12:00:00.000Z", r.URL.Query().Get("dateFrom"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("perPage"))
		assert.Equal(t, "Detailed", r.URL.Query().Get("view"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"records": [
				{"id": "A1", "startTime": "2024-03-01T12:30:00.000Z", "duration": 42, "type": "Voice",
				 "direction": "Inbound", "result": "Accepted",
				 "from": {"phoneNumber": "+16145550101"},
				 "to": {"phoneNumber": "+16145550199", "name": "Dana Agent", "extensionId": "777"},
				 "extension": {"id": 12345, "uri": "https://x/ext/12345"},
				 "billing": {"costIncluded": 0}},
				{"startTime": "2024-03-01T12:31:00.000Z"}
			],
			"paging": {"page": 2, "totalPages": 3}
		}`))
	}))

	page, err := c.FetchCallLog(context.Background(), "tok-1", CallLogRequest{DateFrom: since, Page: 2, PerPage: 50})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasMore())
	require.Len(t, page.Records, 1)
	require.Len(t, page.Rejected, 1)

	rec := page.Records[0]
	assert.Equal(t, "A1", rec.ID)
	assert.Equal(t, 42, rec.Duration)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 42, 0, time.UTC), rec.EndTime())
	assert.Contains(t, string(rec.Raw), `"billing"`)

	extID, extName := rec.ExtensionIdentity()
	assert.Equal(t, "12345", extID)
	assert.Equal(t, "Dana Agent", extName)
}

func TestFetchCallLog_MissingPagingIsLastPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records": []}`))
	}))

	page, err := c.FetchCallLog(context.Background(), "tok", CallLogRequest{DateFrom: time.Now(), Page: 1})
	require.NoError(t, err)
	assert.False(t, page.HasMore())
	assert.Empty(t, page.Records)
}

func TestFetchCallLog_NonSuccessIsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errorCode":"CMN-211"}`))
	}))

	_, err := c.FetchCallLog(context.Background(), "tok", CallLogRequest{DateFrom: time.Now(), Page: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, apiErr.Temporary())
}

func TestRefreshToken_UsesBasicAuthAndRefreshGrant(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","token_type":"bearer","expires_in":3600}`))
	}))

	grant, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", grant.AccessToken)
	assert.Equal(t, "new-refresh", grant.RefreshToken)
	assert.InDelta(t, time.Hour.Seconds(), grant.ExpiresIn.Seconds(), 5)
}

func TestRefreshToken_RejectedGrant(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token is expired"}`))
	}))

	_, err := c.RefreshToken(context.Background(), "stale")
	require.Error(t, err)

	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, http.StatusBadRequest, retrieveErr.Response.StatusCode)
}

func TestNewRingCentralClient_Validates(t *testing.T) {
	_, err := NewRingCentralClient(RingCentralConfig{BaseURL: "not a url", ClientID: "a", ClientSecret: "b"})
	assert.Error(t, err)

	_, err = NewRingCentralClient(RingCentralConfig{BaseURL: "https://platform.example.com"})
	assert.Error(t, err)
}
