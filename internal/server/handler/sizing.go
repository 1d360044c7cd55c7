package handler

import (
	"net/http"
	"strconv"

	"github.com/blockbit-hama/xCrack-sub003/internal/engine"
)

// SizingHandler serves the position sizing helper used when preparing
// sandwich submissions.
type SizingHandler struct{}

// NewSizingHandler creates a SizingHandler.
func NewSizingHandler() *SizingHandler {
	return &SizingHandler{}
}

// SandwichSize returns the half-Kelly position size for the given success
// probability, payoff ratio, and available capital.
// GET /api/v1/size/sandwich?p_bps=7000&b_bps=12000&capital=1000000
func (h *SizingHandler) SandwichSize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pBps, err := strconv.ParseInt(q.Get("p_bps"), 10, 64)
	if err != nil || pBps < 0 || pBps > 10_000 {
		writeError(w, http.StatusBadRequest, "p_bps: must be an integer in [0, 10000]")
		return
	}
	bBps, err := strconv.ParseInt(q.Get("b_bps"), 10, 64)
	if err != nil || bBps <= 0 {
		writeError(w, http.StatusBadRequest, "b_bps: must be a positive integer")
		return
	}
	capital, err := parseAmount(q.Get("capital"), "capital")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	size := engine.HalfKellySize(pBps, bBps, capital)
	writeJSON(w, http.StatusOK, map[string]string{"amount": size.String()})
}
