package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/service"
)

// Submitter runs one strategy submission through the execution core.
type Submitter interface {
	Execute(ctx context.Context, sub service.Submission) (domain.ExecutionReport, error)
}

// ExecuteHandler serves the strategy submission endpoints. Each endpoint
// decodes its own request shape, funds it with the named flash loan, and
// returns the terminated execution report.
type ExecuteHandler struct {
	svc    Submitter
	logger *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(svc Submitter, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{svc: svc, logger: logger}
}

// DecodeSubmission decodes the JSON body for the named strategy into a
// submission. Shared between the HTTP endpoints and the execute-once mode.
func DecodeSubmission(strategy string, r io.Reader) (service.Submission, error) {
	kind, ok := domain.ParseStrategyKind(strategy)
	if !ok {
		return service.Submission{}, fmt.Errorf("unknown strategy %q", strategy)
	}
	switch kind {
	case domain.KindLiquidation:
		return decodeLiquidation(r)
	case domain.KindSandwich:
		return decodeSandwich(r)
	case domain.KindArbitrage:
		return decodeArbitrage(r)
	case domain.KindTriangularArbitrage:
		return decodeTriangular(r)
	case domain.KindPositionMigration:
		return decodeMigration(r)
	case domain.KindMultiAssetArbitrage:
		return decodeMultiAsset(r)
	default:
		return service.Submission{}, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// swapLegDTO is the wire shape of one delegated swap leg.
type swapLegDTO struct {
	Target   string `json:"target"`
	Spender  string `json:"spender,omitempty"`
	TokenOut string `json:"token_out"`
	Payload  string `json:"payload,omitempty"`
}

func (d swapLegDTO) toDomain(field string) (domain.SwapLeg, error) {
	target, err := parseAddress(d.Target, field+".target")
	if err != nil {
		return domain.SwapLeg{}, err
	}
	spender, err := parseOptionalAddress(d.Spender, field+".spender")
	if err != nil {
		return domain.SwapLeg{}, err
	}
	tokenOut, err := parseAddress(d.TokenOut, field+".token_out")
	if err != nil {
		return domain.SwapLeg{}, err
	}
	payload, err := parseCalldata(d.Payload, field+".payload")
	if err != nil {
		return domain.SwapLeg{}, err
	}
	return domain.SwapLeg{Target: target, Spender: spender, TokenOut: tokenOut, Payload: payload}, nil
}

type liquidationRequestDTO struct {
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	Protocol         string `json:"protocol"`
	Pool             string `json:"pool"`
	CollateralMarket string `json:"collateral_market,omitempty"`
	User             string `json:"user"`
	CollateralAsset  string `json:"collateral_asset"`
	DebtAsset        string `json:"debt_asset"`
	DebtToCover      string `json:"debt_to_cover"`
	SwapTarget       string `json:"swap_target,omitempty"`
	SwapPayload      string `json:"swap_payload,omitempty"`
	Deadline         uint64 `json:"deadline,omitempty"`
}

var protocolNames = map[string]domain.ProtocolKind{
	"lending_pool": domain.ProtocolLendingPool,
	"seize_redeem": domain.ProtocolSeizeRedeem,
	"absorb":       domain.ProtocolAbsorb,
}

func decodeLiquidation(r io.Reader) (service.Submission, error) {
	var dto liquidationRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}

	proto, ok := protocolNames[dto.Protocol]
	if !ok {
		return service.Submission{}, errors.New("protocol: must be one of lending_pool, seize_redeem, absorb")
	}
	asset, amount, err := loanOf(dto.Asset, dto.Amount)
	if err != nil {
		return service.Submission{}, err
	}

	req := &domain.LiquidationRequest{Protocol: proto, DeadlineTS: dto.Deadline}
	if req.Pool, err = parseAddress(dto.Pool, "pool"); err != nil {
		return service.Submission{}, err
	}
	if req.CollateralMarket, err = parseOptionalAddress(dto.CollateralMarket, "collateral_market"); err != nil {
		return service.Submission{}, err
	}
	if req.User, err = parseAddress(dto.User, "user"); err != nil {
		return service.Submission{}, err
	}
	if req.CollateralAsset, err = parseAddress(dto.CollateralAsset, "collateral_asset"); err != nil {
		return service.Submission{}, err
	}
	if req.DebtAsset, err = parseAddress(dto.DebtAsset, "debt_asset"); err != nil {
		return service.Submission{}, err
	}
	if req.SwapTarget, err = parseOptionalAddress(dto.SwapTarget, "swap_target"); err != nil {
		return service.Submission{}, err
	}
	if req.DebtToCover, err = parseAmount(dto.DebtToCover, "debt_to_cover"); err != nil {
		return service.Submission{}, err
	}
	if req.SwapPayload, err = parseCalldata(dto.SwapPayload, "swap_payload"); err != nil {
		return service.Submission{}, err
	}

	return service.Submission{
		Request: req,
		Assets:  []common.Address{asset},
		Amounts: []*big.Int{amount},
	}, nil
}

type sandwichRequestDTO struct {
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	Router            string `json:"router"`
	FrontPayload      string `json:"front_payload"`
	BackPayload       string `json:"back_payload"`
	PairedAsset       string `json:"paired_asset"`
	MaxPriceImpactBps int64  `json:"max_price_impact_bps,omitempty"`
	Deadline          uint64 `json:"deadline,omitempty"`
}

func decodeSandwich(r io.Reader) (service.Submission, error) {
	var dto sandwichRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}

	asset, amount, err := loanOf(dto.Asset, dto.Amount)
	if err != nil {
		return service.Submission{}, err
	}
	req := &domain.SandwichRequest{
		Amount:            amount,
		MaxPriceImpactBps: dto.MaxPriceImpactBps,
		DeadlineTS:        dto.Deadline,
	}
	if req.Router, err = parseAddress(dto.Router, "router"); err != nil {
		return service.Submission{}, err
	}
	if req.PairedAsset, err = parseAddress(dto.PairedAsset, "paired_asset"); err != nil {
		return service.Submission{}, err
	}
	if req.FrontPayload, err = parseCalldata(dto.FrontPayload, "front_payload"); err != nil {
		return service.Submission{}, err
	}
	if req.BackPayload, err = parseCalldata(dto.BackPayload, "back_payload"); err != nil {
		return service.Submission{}, err
	}

	return service.Submission{
		Request: req,
		Assets:  []common.Address{asset},
		Amounts: []*big.Int{amount},
	}, nil
}

type arbitrageRequestDTO struct {
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	BuyTarget         string `json:"buy_target"`
	BuyPayload        string `json:"buy_payload"`
	SellTarget        string `json:"sell_target"`
	SellPayload       string `json:"sell_payload"`
	IntermediateAsset string `json:"intermediate_asset"`
	MinProfit         string `json:"min_profit,omitempty"`
	Deadline          uint64 `json:"deadline,omitempty"`
}

func decodeArbitrage(r io.Reader) (service.Submission, error) {
	var dto arbitrageRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}

	asset, amount, err := loanOf(dto.Asset, dto.Amount)
	if err != nil {
		return service.Submission{}, err
	}
	req := &domain.ArbitrageRequest{
		Asset:      asset,
		Amount:     amount,
		DeadlineTS: dto.Deadline,
	}
	if req.BuyTarget, err = parseAddress(dto.BuyTarget, "buy_target"); err != nil {
		return service.Submission{}, err
	}
	if req.SellTarget, err = parseAddress(dto.SellTarget, "sell_target"); err != nil {
		return service.Submission{}, err
	}
	if req.IntermediateAsset, err = parseAddress(dto.IntermediateAsset, "intermediate_asset"); err != nil {
		return service.Submission{}, err
	}
	if req.BuyPayload, err = parseCalldata(dto.BuyPayload, "buy_payload"); err != nil {
		return service.Submission{}, err
	}
	if req.SellPayload, err = parseCalldata(dto.SellPayload, "sell_payload"); err != nil {
		return service.Submission{}, err
	}
	if req.MinProfit, err = parseOptionalAmount(dto.MinProfit, "min_profit"); err != nil {
		return service.Submission{}, err
	}

	return service.Submission{
		Request: req,
		Assets:  []common.Address{asset},
		Amounts: []*big.Int{amount},
	}, nil
}

type triangularRequestDTO struct {
	Asset    string       `json:"asset"`
	Amount   string       `json:"amount"`
	Legs     []swapLegDTO `json:"legs"`
	Deadline uint64       `json:"deadline,omitempty"`
}

func decodeTriangular(r io.Reader) (service.Submission, error) {
	var dto triangularRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}
	if len(dto.Legs) != 3 {
		return service.Submission{}, errors.New("legs: exactly three legs required")
	}

	asset, amount, err := loanOf(dto.Asset, dto.Amount)
	if err != nil {
		return service.Submission{}, err
	}
	req := &domain.TriangularArbitrageRequest{
		Asset:      asset,
		Amount:     amount,
		DeadlineTS: dto.Deadline,
	}
	for i, leg := range dto.Legs {
		if req.Legs[i], err = leg.toDomain("legs[" + strconv.Itoa(i) + "]"); err != nil {
			return service.Submission{}, err
		}
	}

	return service.Submission{
		Request: req,
		Assets:  []common.Address{asset},
		Amounts: []*big.Int{amount},
	}, nil
}

type migrationRequestDTO struct {
	FromProtocol   string   `json:"from_protocol"`
	ToProtocol     string   `json:"to_protocol"`
	Assets         []string `json:"assets"`
	Amounts        []string `json:"amounts"`
	RepayCalldata  []string `json:"repay_calldata"`
	BorrowCalldata []string `json:"borrow_calldata"`
	Deadline       uint64   `json:"deadline,omitempty"`
}

func decodeMigration(r io.Reader) (service.Submission, error) {
	var dto migrationRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}

	assets, amounts, err := loansOf(dto.Assets, dto.Amounts)
	if err != nil {
		return service.Submission{}, err
	}
	if len(dto.RepayCalldata) != len(assets) || len(dto.BorrowCalldata) != len(assets) {
		return service.Submission{}, errors.New("repay_calldata and borrow_calldata must match assets")
	}

	req := &domain.PositionMigrationRequest{
		Assets:     assets,
		Amounts:    amounts,
		DeadlineTS: dto.Deadline,
	}
	if req.FromProtocol, err = parseAddress(dto.FromProtocol, "from_protocol"); err != nil {
		return service.Submission{}, err
	}
	if req.ToProtocol, err = parseAddress(dto.ToProtocol, "to_protocol"); err != nil {
		return service.Submission{}, err
	}
	req.RepayCalldata = make([][]byte, len(assets))
	req.BorrowCalldata = make([][]byte, len(assets))
	for i := range assets {
		if req.RepayCalldata[i], err = parseCalldata(dto.RepayCalldata[i], "repay_calldata"); err != nil {
			return service.Submission{}, err
		}
		if req.BorrowCalldata[i], err = parseCalldata(dto.BorrowCalldata[i], "borrow_calldata"); err != nil {
			return service.Submission{}, err
		}
	}

	return service.Submission{Request: req, Assets: assets, Amounts: amounts}, nil
}

type multiAssetRequestDTO struct {
	Assets   []string       `json:"assets"`
	Amounts  []string       `json:"amounts"`
	Routes   [][]swapLegDTO `json:"routes"`
	Deadline uint64         `json:"deadline,omitempty"`
}

func decodeMultiAsset(r io.Reader) (service.Submission, error) {
	var dto multiAssetRequestDTO
	if err := json.NewDecoder(r).Decode(&dto); err != nil {
		return service.Submission{}, errors.New("invalid JSON body")
	}

	assets, amounts, err := loansOf(dto.Assets, dto.Amounts)
	if err != nil {
		return service.Submission{}, err
	}
	if len(dto.Routes) != len(assets) {
		return service.Submission{}, errors.New("routes must match assets")
	}

	req := &domain.MultiAssetArbitrageRequest{DeadlineTS: dto.Deadline}
	req.Routes = make([]domain.SwapRoute, len(dto.Routes))
	for i, route := range dto.Routes {
		if len(route) == 0 {
			return service.Submission{}, errors.New("routes: empty route")
		}
		legs := make([]domain.SwapLeg, len(route))
		for j, leg := range route {
			if legs[j], err = leg.toDomain("routes[" + strconv.Itoa(i) + "]"); err != nil {
				return service.Submission{}, err
			}
		}
		req.Routes[i] = domain.SwapRoute{Legs: legs}
	}

	return service.Submission{Request: req, Assets: assets, Amounts: amounts}, nil
}

// ExecuteLiquidation runs a flash-loan-funded liquidation.
// POST /api/v1/execute/liquidation
func (h *ExecuteHandler) ExecuteLiquidation(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeLiquidation)
}

// ExecuteSandwich runs a flash-loan-funded sandwich.
// POST /api/v1/execute/sandwich
func (h *ExecuteHandler) ExecuteSandwich(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeSandwich)
}

// ExecuteArbitrage runs a two-venue arbitrage.
// POST /api/v1/execute/arbitrage
func (h *ExecuteHandler) ExecuteArbitrage(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeArbitrage)
}

// ExecuteTriangularArbitrage runs a three-leg circular arbitrage.
// POST /api/v1/execute/triangular_arbitrage
func (h *ExecuteHandler) ExecuteTriangularArbitrage(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeTriangular)
}

// ExecutePositionMigration moves a debt position between protocols.
// POST /api/v1/execute/position_migration
func (h *ExecuteHandler) ExecutePositionMigration(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeMigration)
}

// ExecuteMultiAssetArbitrage runs one independent route per borrowed asset.
// POST /api/v1/execute/multi_asset_arbitrage
func (h *ExecuteHandler) ExecuteMultiAssetArbitrage(w http.ResponseWriter, r *http.Request) {
	h.decodeAndSubmit(w, r, decodeMultiAsset)
}

func (h *ExecuteHandler) decodeAndSubmit(w http.ResponseWriter, r *http.Request, decode func(io.Reader) (service.Submission, error)) {
	sub, err := decode(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.svc.Execute(r.Context(), sub)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "opportunity is already being executed")
			return
		}
		if report.ID == "" {
			// Failed before the engine ran.
			if errors.Is(err, domain.ErrDecodeFailure) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: submission failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "execution failed")
			return
		}
	}
	// An execution that ran and rolled back is still a processed request;
	// the aborted report is returned with a 200.
	writeJSON(w, http.StatusOK, report)
}

// loanOf parses a single-asset loan.
func loanOf(assetStr, amountStr string) (common.Address, *big.Int, error) {
	asset, err := parseAddress(assetStr, "asset")
	if err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount(amountStr, "amount")
	if err != nil {
		return common.Address{}, nil, err
	}
	return asset, amount, nil
}

// loansOf parses a multi-asset loan.
func loansOf(assetStrs, amountStrs []string) ([]common.Address, []*big.Int, error) {
	if len(assetStrs) == 0 {
		return nil, nil, errors.New("assets: at least one asset required")
	}
	if len(assetStrs) != len(amountStrs) {
		return nil, nil, errors.New("assets and amounts must have the same length")
	}
	assets := make([]common.Address, len(assetStrs))
	amounts := make([]*big.Int, len(amountStrs))
	for i := range assetStrs {
		var err error
		if assets[i], err = parseAddress(assetStrs[i], "assets"); err != nil {
			return nil, nil, err
		}
		if amounts[i], err = parseAmount(amountStrs[i], "amounts"); err != nil {
			return nil, nil, err
		}
	}
	return assets, amounts, nil
}
