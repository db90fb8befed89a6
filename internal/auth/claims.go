package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Claims are the only supported JWT claims shape for this service.
// Tokens identify operators and schedulers, not tenant end-users; TenantID is set only for
// tokens scoped to one tenant.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string    `json:"operator_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
