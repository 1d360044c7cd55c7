package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSandwichSize(t *testing.T) {
	h := NewSizingHandler()

	// p=0.70, b=1.2: full Kelly 0.45, halved to 0.225 of capital.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/size/sandwich?p_bps=7000&b_bps=12000&capital=1000000", nil)
	rr := httptest.NewRecorder()
	h.SandwichSize(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"amount": "225000"}`, rr.Body.String())
}

func TestSandwichSizeValidation(t *testing.T) {
	h := NewSizingHandler()
	for _, query := range []string{
		"p_bps=10001&b_bps=12000&capital=1000",
		"p_bps=7000&b_bps=0&capital=1000",
		"p_bps=7000&b_bps=12000&capital=0",
		"p_bps=abc&b_bps=12000&capital=1000",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/size/sandwich?"+query, nil)
		rr := httptest.NewRecorder()
		h.SandwichSize(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}
