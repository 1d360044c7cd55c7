package handler

import (
	"net/http"
	"time"
)

// StatusInfo is runtime metadata reported by the status endpoint.
type StatusInfo struct {
	Mode            string `json:"mode"`
	OwnerAddress    string `json:"owner_address"`
	ExecutorAddress string `json:"executor_address"`
	ProviderAddress string `json:"provider_address"`
	PremiumBps      int64  `json:"premium_bps"`
	StartedAt       time.Time
}

// StatusHandler serves the runtime status endpoint.
type StatusHandler struct {
	info StatusInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo) *StatusHandler {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	return &StatusHandler{info: info}
}

// Status reports the runtime configuration and uptime.
// GET /api/v1/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":             h.info.Mode,
		"owner_address":    h.info.OwnerAddress,
		"executor_address": h.info.ExecutorAddress,
		"provider_address": h.info.ProviderAddress,
		"premium_bps":      h.info.PremiumBps,
		"uptime_seconds":   int64(time.Since(h.info.StartedAt).Seconds()),
	})
}
