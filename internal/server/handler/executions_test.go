package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

type fakeReader struct {
	reports      []domain.ExecutionReport
	lastStrategy string
	lastLimit    int
}

func (f *fakeReader) Reports(_ context.Context, strategy string, limit int) ([]domain.ExecutionReport, error) {
	f.lastStrategy = strategy
	f.lastLimit = limit
	return f.reports, nil
}

func (f *fakeReader) Report(_ context.Context, id string) (domain.ExecutionReport, error) {
	for _, r := range f.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ExecutionReport{}, domain.ErrNotFound
}

func TestListExecutions(t *testing.T) {
	reader := &fakeReader{reports: []domain.ExecutionReport{
		{ID: "a", StrategyName: "arbitrage", Status: domain.ExecutionCommitted},
	}}
	h := NewExecutionsHandler(reader, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions?strategy=arbitrage&limit=10", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "arbitrage", reader.lastStrategy)
	require.Equal(t, 10, reader.lastLimit)
	require.Contains(t, rr.Body.String(), `"executions"`)
}

func TestListExecutionsRejectsUnknownStrategy(t *testing.T) {
	h := NewExecutionsHandler(&fakeReader{}, discard())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions?strategy=frontrun", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListExecutionsEmptyIsArray(t *testing.T) {
	h := NewExecutionsHandler(&fakeReader{}, discard())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"executions": []}`, rr.Body.String())
}

func TestGetExecution(t *testing.T) {
	reader := &fakeReader{reports: []domain.ExecutionReport{{ID: "a"}}}
	h := NewExecutionsHandler(reader, discard())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions/a", nil)
	req.SetPathValue("id", "a")
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/executions/missing", nil)
	req.SetPathValue("id", "missing")
	rr = httptest.NewRecorder()
	h.Get(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
