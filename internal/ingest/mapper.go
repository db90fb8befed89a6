package ingest

import (
	"callsync/internal/calls"
	"callsync/internal/integrations"
	"callsync/internal/telephony"
)

// ToCallEvent maps a validated provider record onto the integration's tenant.
func ToCallEvent(in integrations.Integration, rec telephony.CallRecord) calls.CallEvent {
	extID, extName := rec.ExtensionIdentity()

	e := calls.CallEvent{
		TenantID:        in.TenantID,
		IntegrationID:   in.ID,
		Provider:        in.Provider,
		ExternalID:      rec.ID,
		Direction:       calls.ParseDirection(rec.Direction),
		Kind:            rec.Type,
		StartedAt:       rec.StartTime.UTC(),
		EndedAt:         rec.EndTime().UTC(),
		DurationSeconds: rec.Duration,
		Result:          rec.Result,
		ExtensionID:     extID,
		ExtensionName:   extName,
		Raw:             rec.Raw,
	}
	if rec.From != nil {
		e.FromNumber = telephony.NormalizePhone(rec.From.PhoneNumber)
	}
	if rec.To != nil {
		e.ToNumber = telephony.NormalizePhone(rec.To.PhoneNumber)
	}
	return e
}
