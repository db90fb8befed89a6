package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callsync/internal/auth"
)

// RequireGlobalScope rejects tenant-scoped tokens on endpoints that act across every tenant.
func RequireGlobalScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tid := auth.TenantID(c.Request.Context()); tid != "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant-scoped token not allowed"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - break_glass is a hidden role, and will be denied unless explicitly allowed
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
