package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
)

const ProviderRingCentral = "ringcentral"

const (
	defaultCallLogPath = "/call-log"
	defaultTokenPath   = "/oauth/token"
	maxResponseBytes   = 16 << 20
	maxErrorBodyBytes  = 2 << 10
)

// RingCentralConfig configures the call-log adapter.
// Client credentials are application-wide; tenant tokens are passed per call.
type RingCentralConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// CallLogPath and TokenPath are resolved against BaseURL.
	CallLogPath string
	TokenPath   string

	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// RingCentralClient reads the account call log and refreshes OAuth grants.
type RingCentralClient struct {
	callLogURL string
	httpClient *http.Client
	oauth      *oauth2.Config
	breaker    *gobreaker.CircuitBreaker[CallLogPage]
	breakerKey string
}

var _ CallLogProvider = (*RingCentralClient)(nil)

func NewRingCentralClient(cfg RingCentralConfig) (*RingCentralClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("telephony: invalid provider base url %q", cfg.BaseURL)
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("telephony: provider client id and secret are required")
	}
	if cfg.CallLogPath == "" {
		cfg.CallLogPath = defaultCallLogPath
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	breakerKey := ProviderRingCentral + "-call-log"
	return &RingCentralClient{
		callLogURL: base.String() + cfg.CallLogPath,
		httpClient: hc,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  base.String() + cfg.TokenPath,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		breaker:    newPageBreaker(breakerKey),
		breakerKey: breakerKey,
	}, nil
}

func (c *RingCentralClient) Name() string { return ProviderRingCentral }

// FetchCallLog requests one detailed call-log page created at or after req.DateFrom.
func (c *RingCentralClient) FetchCallLog(ctx context.Context, accessToken string, req CallLogRequest) (CallLogPage, error) {
	if accessToken == "" {
		return CallLogPage{}, errors.New("telephony: access token is empty")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	page, err := c.breaker.Execute(func() (CallLogPage, error) {
		return c.fetchCallLog(ctx, accessToken, req)
	})
	recordBreakerResult(c.breakerKey, err)
	return page, err
}

type callLogResponse struct {
	Records []json.RawMessage `json:"records"`
	Paging  struct {
		Page       int `json:"page"`
		TotalPages int `json:"totalPages"`
	} `json:"paging"`
}

func (c *RingCentralClient) fetchCallLog(ctx context.Context, accessToken string, req CallLogRequest) (CallLogPage, error) {
	q := url.Values{}
	q.Set("dateFrom", req.DateFrom.UTC().Format("2006-01-02T15:04:05.000Z"))
	q.Set("page", strconv.Itoa(req.Page))
	if req.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(req.PerPage))
	}
	q.Set("view", "Detailed")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.callLogURL+"?"+q.Encode(), nil)
	if err != nil {
		return CallLogPage{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CallLogPage{}, fmt.Errorf("telephony: call-log request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return CallLogPage{}, &APIError{Op: "call-log", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return CallLogPage{}, fmt.Errorf("telephony: read call-log body: %w", err)
	}
	var decoded callLogResponse
	if err := gojson.Unmarshal(body, &decoded); err != nil {
		return CallLogPage{}, fmt.Errorf("telephony: decode call-log page: %w", err)
	}

	out := CallLogPage{
		Records:    make([]CallRecord, 0, len(decoded.Records)),
		Page:       decoded.Paging.Page,
		TotalPages: decoded.Paging.TotalPages,
	}
	if out.Page <= 0 {
		out.Page = req.Page
	}
	if out.TotalPages <= 0 {
		// No paging metadata means no further pages.
		out.TotalPages = out.Page
	}
	for _, raw := range decoded.Records {
		rec, err := DecodeCallRecord(raw)
		if err != nil {
			out.Rejected = append(out.Rejected, RejectedRecord{Raw: raw, Err: err})
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// DecodeCallRecord parses and validates a single provider record, keeping the verbatim JSON.
func DecodeCallRecord(raw json.RawMessage) (CallRecord, error) {
	var rec CallRecord
	if err := gojson.Unmarshal(raw, &rec); err != nil {
		return CallRecord{}, fmt.Errorf("telephony: decode call record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return CallRecord{}, err
	}
	rec.Raw = append(json.RawMessage(nil), raw...)
	return rec, nil
}

// RefreshToken performs the refresh_token grant with HTTP Basic client authentication.
func (c *RingCentralClient) RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error) {
	if refreshToken == "" {
		return TokenGrant{}, errors.New("telephony: refresh token is empty")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenGrant{}, err
	}

	grant := TokenGrant{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	switch {
	case tok.ExpiresIn > 0:
		grant.ExpiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		grant.ExpiresIn = time.Until(tok.Expiry)
	}
	return grant, nil
}
