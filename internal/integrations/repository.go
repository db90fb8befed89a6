package integrations

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound        = errors.New("integrations: not found")
	ErrInvalidArgument = errors.New("integrations: invalid argument")

	// ErrStaleWatermark means another run advanced the watermark after this run read it.
	ErrStaleWatermark = errors.New("integrations: watermark changed since it was read")
)

// Repository persists Integration rows.
//
// IMPORTANT:
// - Only CredentialManager writes token material.
// - AdvanceWatermark is a compare-and-set on last_sync_at; it also clears last_sync_error.
type Repository interface {
	ListActive(ctx context.Context) ([]Integration, error)
	// List returns every integration, disabled ones included.
	List(ctx context.Context) ([]Integration, error)
	Get(ctx context.Context, id string) (Integration, error)

	UpdateTokens(ctx context.Context, id string, u TokenUpdate, now time.Time) error
	Disable(ctx context.Context, id, reason string, now time.Time) error
	RecordSyncError(ctx context.Context, id, message string, now time.Time) error
	AdvanceWatermark(ctx context.Context, id string, expected *time.Time, next time.Time) error
}

// maxErrorLen bounds stored error messages, in bytes.
const maxErrorLen = 1000

// truncateMessage cuts s to at most maxErrorLen bytes on a rune boundary.
// Provider error bodies are arbitrary bytes; invalid sequences are replaced and NULs dropped
// so the text column accepts them.
func truncateMessage(s string) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
	if len(s) <= maxErrorLen {
		return s
	}
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sameWatermark(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
