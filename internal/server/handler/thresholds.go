package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// ThresholdStore reads and writes the live execution bounds.
type ThresholdStore interface {
	Thresholds(ctx context.Context, defaults domain.Thresholds) (domain.Thresholds, error)
	SetThresholds(ctx context.Context, t domain.Thresholds) error
}

// ThresholdsHandler serves the control-plane threshold endpoints.
type ThresholdsHandler struct {
	svc      ThresholdStore
	defaults domain.Thresholds
	logger   *slog.Logger
}

// NewThresholdsHandler creates a ThresholdsHandler. defaults are returned
// when no thresholds have been stored yet.
func NewThresholdsHandler(svc ThresholdStore, defaults domain.Thresholds, logger *slog.Logger) *ThresholdsHandler {
	return &ThresholdsHandler{svc: svc, defaults: defaults, logger: logger}
}

// Get returns the live execution bounds.
// GET /api/v1/thresholds
func (h *ThresholdsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Thresholds(r.Context(), h.defaults)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get thresholds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load thresholds")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Update replaces the live execution bounds.
// PUT /api/v1/thresholds
func (h *ThresholdsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var t domain.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateThresholds(t); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.svc.SetThresholds(r.Context(), t); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: update thresholds failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store thresholds")
		return
	}

	h.logger.InfoContext(r.Context(), "thresholds updated",
		slog.String("min_profit_wei", t.MinProfitWei),
		slog.Int64("max_price_impact_bps", t.MaxPriceImpactBps),
		slog.Int64("max_slippage_bps", t.MaxSlippageBps),
		slog.Int64("deadline_seconds", t.DeadlineSeconds),
	)
	writeJSON(w, http.StatusOK, t)
}

func validateThresholds(t domain.Thresholds) string {
	if t.MinProfitWei != "" {
		n, ok := new(big.Int).SetString(t.MinProfitWei, 10)
		if !ok || n.Sign() < 0 {
			return "min_profit_wei: must be a non-negative base-10 integer"
		}
	}
	if t.MaxPriceImpactBps < 0 || t.MaxPriceImpactBps >= 10_000 {
		return "max_price_impact_bps: must be in [0, 10000)"
	}
	if t.MaxSlippageBps < 0 || t.MaxSlippageBps >= 10_000 {
		return "max_slippage_bps: must be in [0, 10000)"
	}
	if t.DeadlineSeconds < 0 {
		return "deadline_seconds: must not be negative"
	}
	return ""
}
