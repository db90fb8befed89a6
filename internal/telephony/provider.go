package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CallLogProvider is the provider-facing contract used by the sync pipeline.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Tokens are passed in per call; adapters hold no tenant state.
type CallLogProvider interface {
	Name() string
	CallLogFetcher
	TokenRefresher
}

// CallLogFetcher reads one page of the provider call log.
type CallLogFetcher interface {
	FetchCallLog(ctx context.Context, accessToken string, req CallLogRequest) (CallLogPage, error)
}

// TokenRefresher exchanges a refresh token for a new grant.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error)
}

type CallLogRequest struct {
	DateFrom time.Time
	Page     int
	PerPage  int
}

// CallLogPage is one decoded page of the call-log endpoint.
type CallLogPage struct {
	Records    []CallRecord
	Page       int
	TotalPages int

	// Rejected holds records that failed decoding or validation.
	Rejected []RejectedRecord
}

type RejectedRecord struct {
	Raw json.RawMessage
	Err error
}

// HasMore reports whether the provider has pages after this one.
func (p CallLogPage) HasMore() bool { return p.Page < p.TotalPages }

// TokenGrant is the result of a refresh_token grant.
// RefreshToken may differ from the one presented; providers rotate it.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// CallRecord is a validated call-log entry.
// Raw keeps the verbatim provider JSON for fields we do not model yet.
type CallRecord struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId,omitempty"`
	StartTime time.Time     `json:"startTime"`
	Duration  int           `json:"duration"`
	Type      string        `json:"type,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Action    string        `json:"action,omitempty"`
	Result    string        `json:"result,omitempty"`
	From      *Party        `json:"from,omitempty"`
	To        *Party        `json:"to,omitempty"`
	Extension *ExtensionRef `json:"extension,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Party is one side of a call.
type Party struct {
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Name            string `json:"name,omitempty"`
	ExtensionID     string `json:"extensionId,omitempty"`
	ExtensionNumber string `json:"extensionNumber,omitempty"`
}

// ExtensionRef identifies the account extension that owns the record.
type ExtensionRef struct {
	ID  FlexibleID `json:"id,omitempty"`
	URI string     `json:"uri,omitempty"`
}

// FlexibleID accepts either a JSON string or a JSON number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	*f = FlexibleID(strings.Trim(s, `"`))
	return nil
}

func (f FlexibleID) String() string { return string(f) }

// Validate rejects records that cannot be keyed or placed in time.
func (r CallRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("telephony: call record missing id")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("telephony: call record %s missing startTime", r.ID)
	}
	if r.Duration < 0 {
		return fmt.Errorf("telephony: call record %s has negative duration", r.ID)
	}
	return nil
}

// LocalParty is the side of the call that belongs to the tenant's extension.
func (r CallRecord) LocalParty() *Party {
	if strings.EqualFold(r.Direction, "Inbound") {
		return r.To
	}
	return r.From
}

// EndTime is derived from the start time and duration.
func (r CallRecord) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.Duration) * time.Second)
}

// ExtensionIdentity returns the owning extension id, falling back to the local party's extension.
func (r CallRecord) ExtensionIdentity() (id, name string) {
	if r.Extension != nil {
		id = r.Extension.ID.String()
	}
	if p := r.LocalParty(); p != nil {
		if id == "" {
			id = p.ExtensionID
		}
		name = p.Name
	}
	return id, name
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telephony: %s returned HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
