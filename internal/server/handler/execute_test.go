package handler

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/service"
)

var (
	pool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	venue = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdc  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	weth  = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSubmitter struct {
	last   service.Submission
	report domain.ExecutionReport
	err    error
}

func (f *fakeSubmitter) Execute(_ context.Context, sub service.Submission) (domain.ExecutionReport, error) {
	f.last = sub
	return f.report, f.err
}

const arbitrageBody = `{
	"asset": "0x4444444444444444444444444444444444444444",
	"amount": "1000000",
	"buy_target": "0x2222222222222222222222222222222222222222",
	"buy_payload": "0x01",
	"sell_target": "0x1111111111111111111111111111111111111111",
	"intermediate_asset": "0x5555555555555555555555555555555555555555",
	"min_profit": "50"
}`

func TestDecodeSubmissionArbitrage(t *testing.T) {
	sub, err := DecodeSubmission("arbitrage", strings.NewReader(arbitrageBody))
	require.NoError(t, err)

	req, ok := sub.Request.(*domain.ArbitrageRequest)
	require.True(t, ok)
	require.Equal(t, venue, req.BuyTarget)
	require.Equal(t, pool, req.SellTarget)
	require.Equal(t, usdc, req.Asset)
	require.Equal(t, weth, req.IntermediateAsset)
	require.Equal(t, []byte{0x01}, req.BuyPayload)
	require.Equal(t, big.NewInt(50), req.MinProfit)

	require.Equal(t, []common.Address{usdc}, sub.Assets)
	require.Equal(t, []*big.Int{big.NewInt(1_000_000)}, sub.Amounts)
}

func TestDecodeSubmissionUnknownStrategy(t *testing.T) {
	_, err := DecodeSubmission("frontrun", strings.NewReader(`{}`))
	require.ErrorContains(t, err, "unknown strategy")
}

func TestDecodeLiquidationRejectsBadProtocol(t *testing.T) {
	body := `{
		"asset": "0x4444444444444444444444444444444444444444",
		"amount": "1000",
		"protocol": "margin_call",
		"pool": "0x1111111111111111111111111111111111111111",
		"user": "0x3333333333333333333333333333333333333333",
		"collateral_asset": "0x5555555555555555555555555555555555555555",
		"debt_asset": "0x4444444444444444444444444444444444444444",
		"debt_to_cover": "1000"
	}`
	_, err := DecodeSubmission("liquidation", strings.NewReader(body))
	require.ErrorContains(t, err, "protocol")
}

func TestDecodeRejectsBadAddressAndAmount(t *testing.T) {
	_, err := decodeArbitrage(strings.NewReader(`{"asset": "not-an-address", "amount": "1"}`))
	require.ErrorContains(t, err, "asset")

	_, err = decodeArbitrage(strings.NewReader(
		`{"asset": "0x4444444444444444444444444444444444444444", "amount": "-5"}`))
	require.ErrorContains(t, err, "amount must be positive")
}

func TestDecodeTriangularRequiresThreeLegs(t *testing.T) {
	body := `{
		"asset": "0x4444444444444444444444444444444444444444",
		"amount": "1000",
		"legs": [
			{"target": "0x1111111111111111111111111111111111111111", "token_out": "0x5555555555555555555555555555555555555555"}
		]
	}`
	_, err := DecodeSubmission("triangular_arbitrage", strings.NewReader(body))
	require.ErrorContains(t, err, "exactly three legs")
}

func TestDecodeMultiAssetRejectsRouteMismatch(t *testing.T) {
	body := `{
		"assets": ["0x4444444444444444444444444444444444444444", "0x5555555555555555555555555555555555555555"],
		"amounts": ["100", "200"],
		"routes": [
			[{"target": "0x1111111111111111111111111111111111111111", "token_out": "0x5555555555555555555555555555555555555555"}]
		]
	}`
	_, err := DecodeSubmission("multi_asset_arbitrage", strings.NewReader(body))
	require.ErrorContains(t, err, "routes must match assets")
}

func TestDecodeMigrationRejectsCalldataMismatch(t *testing.T) {
	body := `{
		"from_protocol": "0x1111111111111111111111111111111111111111",
		"to_protocol": "0x2222222222222222222222222222222222222222",
		"assets": ["0x4444444444444444444444444444444444444444"],
		"amounts": ["100"],
		"repay_calldata": ["0x01", "0x02"],
		"borrow_calldata": ["0x01"]
	}`
	_, err := DecodeSubmission("position_migration", strings.NewReader(body))
	require.ErrorContains(t, err, "must match assets")
}

func postArbitrage(t *testing.T, h *ExecuteHandler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/execute/arbitrage", strings.NewReader(arbitrageBody))
	rr := httptest.NewRecorder()
	h.ExecuteArbitrage(rr, req)
	return rr
}

func TestExecuteArbitrageCommitted(t *testing.T) {
	svc := &fakeSubmitter{report: domain.ExecutionReport{
		ID:     "r-1",
		Status: domain.ExecutionCommitted,
	}}
	rr := postArbitrage(t, NewExecuteHandler(svc, discard()))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"r-1"`)
	require.IsType(t, &domain.ArbitrageRequest{}, svc.last.Request)
}

func TestExecuteArbitrageAbortedStillOK(t *testing.T) {
	svc := &fakeSubmitter{
		report: domain.ExecutionReport{ID: "r-2", Status: domain.ExecutionAborted, AbortReason: "profit below configured minimum"},
		err:    domain.ErrInsufficientProfit,
	}
	rr := postArbitrage(t, NewExecuteHandler(svc, discard()))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "aborted")
}

func TestExecuteArbitrageLockHeld(t *testing.T) {
	svc := &fakeSubmitter{err: domain.ErrLockHeld}
	rr := postArbitrage(t, NewExecuteHandler(svc, discard()))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestExecuteArbitrageBadBody(t *testing.T) {
	h := NewExecuteHandler(&fakeSubmitter{}, discard())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/execute/arbitrage", strings.NewReader(`{"asset": 7}`))
	rr := httptest.NewRecorder()
	h.ExecuteArbitrage(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExecuteArbitrageInternalFailure(t *testing.T) {
	svc := &fakeSubmitter{err: io.ErrUnexpectedEOF}
	rr := postArbitrage(t, NewExecuteHandler(svc, discard()))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
