package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// ReportReader lists and fetches persisted execution reports.
type ReportReader interface {
	Reports(ctx context.Context, strategy string, limit int) ([]domain.ExecutionReport, error)
	Report(ctx context.Context, id string) (domain.ExecutionReport, error)
}

// ExecutionsHandler serves the execution history endpoints.
type ExecutionsHandler struct {
	svc    ReportReader
	logger *slog.Logger
}

// NewExecutionsHandler creates an ExecutionsHandler.
func NewExecutionsHandler(svc ReportReader, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{svc: svc, logger: logger}
}

// listExecutionsResponse wraps the execution list response.
type listExecutionsResponse struct {
	Executions []domain.ExecutionReport `json:"executions"`
}

// List returns recent execution reports, newest first.
// GET /api/v1/executions?strategy=liquidation&limit=50
func (h *ExecutionsHandler) List(w http.ResponseWriter, r *http.Request) {
	strategy := r.URL.Query().Get("strategy")
	if strategy != "" {
		if _, ok := domain.ParseStrategyKind(strategy); !ok {
			writeError(w, http.StatusBadRequest, "unknown strategy "+strategy)
			return
		}
	}

	reports, err := h.svc.Reports(r.Context(), strategy, parseLimit(r, 50))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if reports == nil {
		reports = []domain.ExecutionReport{}
	}

	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: reports})
}

// Get returns one execution report by ID.
// GET /api/v1/executions/{id}
func (h *ExecutionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	report, err := h.svc.Report(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
