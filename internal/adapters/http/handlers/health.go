package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/longregen/helpdesk/internal/adapters/circuitbreaker"
)

const Version = "1.0.0"

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	Timeout time.Duration // Timeout for each individual health check
}

// DefaultHealthCheckConfig returns default health check configuration
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Timeout: 5 * time.Second,
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerReporter exposes the assistant circuit state.
type BreakerReporter interface {
	BreakerState() circuitbreaker.State
}

type HealthHandler struct {
	config    HealthCheckConfig
	db        Pinger
	assistant BreakerReporter
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		config: DefaultHealthCheckConfig(),
	}
}

func NewHealthHandlerWithDeps(db Pinger, assistant BreakerReporter) *HealthHandler {
	return &HealthHandler{
		config:    DefaultHealthCheckConfig(),
		db:        db,
		assistant: assistant,
	}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type DetailedHealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Handle provides a basic health check endpoint
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// HandleDetailed checks the ticket store and the assistant circuit
func (h *HealthHandler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	response := DetailedHealthResponse{
		Version:  Version,
		Services: make(map[string]ServiceHealth),
	}

	if h.db != nil {
		response.Services["database"] = h.checkDatabase(r.Context())
	}
	if h.assistant != nil {
		response.Services["assistant"] = h.checkAssistant()
	}

	response.Status = h.calculateOverallStatus(response.Services)

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respond(w, r, statusCode, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := h.db.Ping(checkCtx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		return ServiceHealth{
			Status:    "unhealthy",
			LatencyMs: &latency,
			Error:     &errMsg,
		}
	}

	return ServiceHealth{
		Status:    "healthy",
		LatencyMs: &latency,
	}
}

// checkAssistant reports the breaker without calling the remote function.
func (h *HealthHandler) checkAssistant() ServiceHealth {
	switch state := h.assistant.BreakerState(); state {
	case circuitbreaker.StateClosed:
		return ServiceHealth{Status: "healthy"}
	default:
		msg := "circuit " + state.String()
		return ServiceHealth{Status: "degraded", Error: &msg}
	}
}

// calculateOverallStatus determines the overall system status based on individual services
func (h *HealthHandler) calculateOverallStatus(services map[string]ServiceHealth) string {
	if len(services) == 0 {
		return "healthy"
	}

	degraded := false
	for name, service := range services {
		switch service.Status {
		case "unhealthy":
			// The ticket store is required
			if name == "database" {
				return "unhealthy"
			}
			degraded = true
		case "degraded":
			degraded = true
		}
	}

	if degraded {
		return "degraded"
	}
	return "healthy"
}
