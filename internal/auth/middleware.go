package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"callsync/pkg/logger"
)

const bearerPrefix = "Bearer "

// RequireAccessToken verifies an operator token and injects identity into request context.
// The request logger, when present, gains operator_id and role.
// RBAC checks belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		tok, ok := strings.CutPrefix(raw, bearerPrefix)
		if !ok || strings.TrimSpace(tok) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := m.Verify(strings.TrimSpace(tok), time.Now())
		if err != nil {
			logger.FromGin(c).Info("bearer token rejected", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.OperatorID, claims.TenantID, claims.Role)
		reqLog := logger.FromGin(c).With(
			slog.String("operator_id", claims.OperatorID),
			slog.String("role", claims.Role),
		)
		c.Set("logger", reqLog)
		c.Request = c.Request.WithContext(logger.With(ctx, reqLog))

		c.Next()
	}
}
