package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/crop-advisory-service/internal/lifecycle"
)

const serviceName = "crop-advisory-service"

// HealthConfig holds lifecycle thresholds and probes for the health handler.
type HealthConfig struct {
	Thresholds lifecycle.Thresholds
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// AdvisoryState reports the advisory breaker state, or "disabled".
	AdvisoryState func() string
	// OnDegraded is called each time /health resolves to degraded.
	OnDegraded func()
	// ProbeTTL caches the weather API key probe; 0 probes on every call.
	ProbeTTL time.Duration
	Version  string
}

type healthState struct {
	mu       sync.Mutex
	prev     string
	probedAt time.Time
	probeErr error
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	keyErr := h.probeAPIKey(r.Context())
	result := h.computeHealthStatus(keyErr)

	h.health.mu.Lock()
	prev := h.health.prev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.health.prev = result.status
	h.health.mu.Unlock()

	if result.status == lifecycle.StatusDegraded && h.healthConfig != nil && h.healthConfig.OnDegraded != nil {
		h.healthConfig.OnDegraded()
	}

	checks := map[string]string{"weatherApi": "healthy"}
	if keyErr != nil {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.AdvisoryState != nil {
			checks["advisoryApi"] = advisoryCheck(h.healthConfig.AdvisoryState())
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}

	writeJSON(w, result.statusCode, healthResponse{
		Status:    result.status,
		Service:   serviceName,
		Version:   version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus resolves status in order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(keyErr error) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{lifecycle.StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	if keyErr != nil {
		return healthResult{lifecycle.StatusDegraded, http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil {
		return healthResult{lifecycle.StatusHealthy, http.StatusOK, ""}
	}
	switch lifecycle.Status(h.healthConfig.Thresholds) {
	case lifecycle.StatusShuttingDown:
		return healthResult{lifecycle.StatusShuttingDown, http.StatusServiceUnavailable, "signal"}
	case lifecycle.StatusOverloaded:
		return healthResult{lifecycle.StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"}
	case lifecycle.StatusDegraded:
		return healthResult{lifecycle.StatusDegraded, http.StatusServiceUnavailable, "error_rate"}
	default:
		return healthResult{lifecycle.StatusHealthy, http.StatusOK, ""}
	}
}

// probeAPIKey validates the weather key, reusing the last result within ProbeTTL.
func (h *Handler) probeAPIKey(ctx context.Context) error {
	if h.deps.Client == nil {
		return nil
	}
	var ttl time.Duration
	if h.healthConfig != nil {
		ttl = h.healthConfig.ProbeTTL
	}
	h.health.mu.Lock()
	if ttl > 0 && !h.health.probedAt.IsZero() && time.Since(h.health.probedAt) < ttl {
		err := h.health.probeErr
		h.health.mu.Unlock()
		return err
	}
	h.health.mu.Unlock()

	err := h.deps.Client.ValidateAPIKey(ctx)

	h.health.mu.Lock()
	h.health.probedAt = time.Now()
	h.health.probeErr = err
	h.health.mu.Unlock()
	return err
}

func advisoryCheck(state string) string {
	switch state {
	case "closed":
		return "healthy"
	case "disabled":
		return "disabled"
	default:
		return "unhealthy"
	}
}
