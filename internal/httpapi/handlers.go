package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callsync/internal/integrations"
	"callsync/internal/syncjob"
	"callsync/pkg/logger"
	"callsync/pkg/utils"
)

// JobRunner runs one full sync across every active integration.
type JobRunner interface {
	RunActive(ctx context.Context) syncjob.Summary
}

// IntegrationLister lists every integration, disabled ones included.
type IntegrationLister interface {
	List(ctx context.Context) ([]integrations.Integration, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Job          JobRunner
	Integrations IntegrationLister
	DB           *sql.DB
}

// --- Jobs ---

// TriggerCallSync runs the call-log sync synchronously and returns the run summary.
// The run is detached from the request so a dropped client does not abort it half way.
func (h Handlers) TriggerCallSync(c *gin.Context) {
	if h.Job == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sync job not configured"})
		return
	}
	logger.FromGin(c).Info("call sync triggered")

	sum := h.Job.RunActive(context.WithoutCancel(c.Request.Context()))

	status := http.StatusOK
	if !sum.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, sum)
}

// --- Integrations ---

type integrationStatus struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Provider       string     `json:"provider"`
	Active         bool       `json:"active"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
}

// ListIntegrations reports sync state for every integration. Disabled ones need re-authorization
// and carry the reason in last_sync_error. Token material is never returned.
func (h Handlers) ListIntegrations(c *gin.Context) {
	if h.Integrations == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "integrations not configured"})
		return
	}
	list, err := h.Integrations.List(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load integrations"})
		return
	}
	out := make([]integrationStatus, 0, len(list))
	for _, in := range list {
		out = append(out, integrationStatus{
			ID:             in.ID,
			TenantID:       in.TenantID,
			Provider:       in.Provider,
			Active:         in.Active,
			LastSyncAt:     in.LastSyncAt,
			LastSyncError:  in.LastSyncError,
			TokenExpiresAt: in.TokenExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"integrations": out})
}

// --- Health ---

func (h Handlers) Health(c *gin.Context) {
	if h.DB != nil {
		if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
