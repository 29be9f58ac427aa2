package controlplane

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/channel"
	"github.com/marmos91/paylink/pkg/registry"
)

// Response is the standard API response wrapper.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode API response", logger.Err(err))
	}
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errResponse(msg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: msg}
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	registry  *registry.Registry
	startTime time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(reg *registry.Registry) *HealthHandler {
	return &HealthHandler{registry: reg, startTime: time.Now()}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"service":    "paylink",
			"started_at": h.startTime.UTC().Format(time.RFC3339),
			"uptime":     uptime.Round(time.Second).String(),
		},
	})
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errResponse("registry not initialized"))
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]interface{}{
			"active_sessions": len(h.registry.Sessions()),
		},
	})
}

// SessionHandler serves the live-session listing.
type SessionHandler struct {
	registry *registry.Registry
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(reg *registry.Registry) *SessionHandler {
	return &SessionHandler{registry: reg}
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"sessions": h.registry.Sessions(),
	}))
}

// QuotaHandler serves quota lookups and grants.
type QuotaHandler struct {
	registry *registry.Registry
}

// NewQuotaHandler creates a quota handler.
func NewQuotaHandler(reg *registry.Registry) *QuotaHandler {
	return &QuotaHandler{registry: reg}
}

// quotaInfo is the wire form of one caller's quota.
type quotaInfo struct {
	Caller string `json:"caller"`
	Quota  int64  `json:"quota"`
}

// Get handles GET /api/v1/quotas/{caller}.
func (h *QuotaHandler) Get(caller string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quota, err := h.registry.Quota(caller)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, okResponse(quotaInfo{Caller: caller, Quota: quota}))
	}
}

// GrantRequest is the body of POST /api/v1/quotas/{caller}/grant.
type GrantRequest struct {
	Amount int64 `json:"amount"`
}

// Grant handles POST /api/v1/quotas/{caller}/grant.
func (h *QuotaHandler) Grant(caller string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GrantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse("invalid request body"))
			return
		}

		total, err := h.registry.Grant(caller, req.Amount)
		if err != nil {
			status := http.StatusInternalServerError
			if channel.HasCode(err, channel.CodeInvalidRequest) ||
				channel.HasCode(err, channel.CodeValueOutOfRange) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, errResponse(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, okResponse(quotaInfo{Caller: caller, Quota: total}))
	}
}
