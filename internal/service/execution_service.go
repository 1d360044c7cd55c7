// Package service coordinates one strategy submission end to end: the
// per-opportunity lock, the engine execution, and the observability fan-out
// (store, archive, notifications, websocket stream).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
	"github.com/blockbit-hama/xCrack-sub003/internal/engine"
	"github.com/blockbit-hama/xCrack-sub003/internal/notify"
)

// Publisher streams terminated execution reports to connected clients.
// Implemented by the websocket hub.
type Publisher interface {
	PublishReport(report domain.ExecutionReport)
}

// ExecutionService wraps the engine's owner-gated entrypoints. Every
// submission runs under a short-lived opportunity lock and produces exactly
// one ExecutionReport regardless of outcome.
type ExecutionService struct {
	exec      *engine.Executor
	owner     common.Address
	baseCfg   engine.Config
	store     domain.ExecutionReportStore
	archiver  domain.ReportArchiver
	cache     domain.ThresholdCache
	locks     domain.LockManager
	notifier  *notify.Notifier
	publisher Publisher
	lockTTL   time.Duration
	logger    *slog.Logger
}

// Deps carries the collaborators an ExecutionService needs. Store, archiver,
// cache, locks, notifier, and publisher may each be nil; the corresponding
// step is skipped.
type Deps struct {
	Executor *engine.Executor
	Owner    common.Address
	// BaseConfig holds the configured execution bounds; stored thresholds
	// are overlaid onto it per submission.
	BaseConfig engine.Config
	Store      domain.ExecutionReportStore
	Archiver   domain.ReportArchiver
	Cache      domain.ThresholdCache
	Locks      domain.LockManager
	Notifier   *notify.Notifier
	Publisher  Publisher
	LockTTL    time.Duration
}

// NewExecutionService creates an ExecutionService.
func NewExecutionService(deps Deps, logger *slog.Logger) *ExecutionService {
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ExecutionService{
		exec:      deps.Executor,
		owner:     deps.Owner,
		baseCfg:   deps.BaseConfig,
		store:     deps.Store,
		archiver:  deps.Archiver,
		cache:     deps.Cache,
		locks:     deps.Locks,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		lockTTL:   ttl,
		logger:    logger.With(slog.String("component", "execution_service")),
	}
}

// Submission is one strategy request plus the loan it should be funded with.
type Submission struct {
	Request domain.StrategyRequest
	Assets  []common.Address
	Amounts []*big.Int
}

// Execute runs one submission and returns its report. The error mirrors the
// report's abort reason; a nil error means the execution committed.
func (s *ExecutionService) Execute(ctx context.Context, sub Submission) (domain.ExecutionReport, error) {
	if len(sub.Assets) == 0 || len(sub.Assets) != len(sub.Amounts) {
		return domain.ExecutionReport{}, fmt.Errorf("service: assets/amounts length mismatch: %w", domain.ErrDecodeFailure)
	}

	key := lockKeyFor(sub)
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return domain.ExecutionReport{}, fmt.Errorf("service: opportunity %s: %w", key, err)
		}
		defer release()
	}

	s.applyThresholds(ctx)

	started := time.Now().UTC()
	result, execErr := s.dispatch(ctx, sub)
	completed := time.Now().UTC()

	report := domain.ExecutionReport{
		ID:           uuid.New().String(),
		Strategy:     sub.Request.Kind(),
		StrategyName: sub.Request.Kind().String(),
		Assets:       sub.Assets,
		Amounts:      sub.Amounts,
		StartedAt:    started,
		CompletedAt:  completed,
		DurationMs:   completed.Sub(started).Milliseconds(),
	}
	if execErr != nil {
		report.Status = domain.ExecutionAborted
		report.AbortReason = execErr.Error()
	} else {
		report.Status = domain.ExecutionCommitted
		report.GrossProfit = result.GrossProfit
		report.NetProfit = result.NetProfit
	}

	s.publish(ctx, report)
	return report, execErr
}

// applyThresholds overlays the stored execution bounds onto the configured
// base and hands them to the engine, so control-plane edits take effect on
// the next submission without a restart. A missing or unreachable cache
// leaves the current bounds in place.
func (s *ExecutionService) applyThresholds(ctx context.Context) {
	if s.cache == nil {
		return
	}
	t, err := s.cache.Get(ctx)
	if err != nil {
		if err != domain.ErrNotFound {
			s.logger.Warn("reading thresholds failed", slog.String("error", err.Error()))
		}
		return
	}
	s.exec.SetConfig(engine.ConfigFromThresholds(t, s.baseCfg))
}

// dispatch routes the submission to the matching executor entrypoint.
func (s *ExecutionService) dispatch(ctx context.Context, sub Submission) (domain.ExecutionResult, error) {
	switch req := sub.Request.(type) {
	case *domain.LiquidationRequest:
		return s.exec.ExecuteLiquidation(ctx, s.owner, sub.Assets[0], sub.Amounts[0], req)
	case *domain.SandwichRequest:
		return s.exec.ExecuteSandwich(ctx, s.owner, sub.Assets[0], sub.Amounts[0], req)
	case *domain.ArbitrageRequest:
		return s.exec.ExecuteArbitrage(ctx, s.owner, sub.Assets[0], sub.Amounts[0], req)
	case *domain.TriangularArbitrageRequest:
		return s.exec.ExecuteTriangularArbitrage(ctx, s.owner, req)
	case *domain.PositionMigrationRequest:
		return s.exec.ExecutePositionMigration(ctx, s.owner, req)
	case *domain.MultiAssetArbitrageRequest:
		modes := make([]uint8, len(sub.Assets))
		return s.exec.ExecuteMultiAssetArbitrage(ctx, s.owner, sub.Assets, sub.Amounts, modes, req)
	default:
		return domain.ExecutionResult{}, fmt.Errorf("service: unsupported request %T: %w", req, domain.ErrDecodeFailure)
	}
}

// publish fans the report out to every configured observability sink.
// Failures are logged, never propagated: the execution outcome is already
// settled.
func (s *ExecutionService) publish(ctx context.Context, report domain.ExecutionReport) {
	log := s.logger.With(
		slog.String("report_id", report.ID),
		slog.String("strategy", report.StrategyName),
		slog.String("status", string(report.Status)),
	)

	if s.store != nil {
		if err := s.store.Create(ctx, report); err != nil {
			log.Error("persisting report failed", slog.String("error", err.Error()))
		}
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, report); err != nil {
			log.Error("archiving report failed", slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil {
		event, title, message := notify.FormatReport(report)
		if err := s.notifier.Notify(ctx, event, title, message); err != nil {
			log.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
	if s.publisher != nil {
		s.publisher.PublishReport(report)
	}

	log.Info("report published", slog.Int64("duration_ms", report.DurationMs))
}

// Reports returns recent execution reports, optionally filtered by strategy
// name.
func (s *ExecutionService) Reports(ctx context.Context, strategy string, limit int) ([]domain.ExecutionReport, error) {
	if s.store == nil {
		return nil, nil
	}
	if strategy != "" {
		return s.store.ListByStrategy(ctx, strategy, limit)
	}
	return s.store.List(ctx, limit)
}

// Report returns one execution report by ID.
func (s *ExecutionService) Report(ctx context.Context, id string) (domain.ExecutionReport, error) {
	if s.store == nil {
		return domain.ExecutionReport{}, domain.ErrNotFound
	}
	return s.store.GetByID(ctx, id)
}

// Thresholds returns the live execution bounds, falling back to the given
// defaults when none have been stored.
func (s *ExecutionService) Thresholds(ctx context.Context, defaults domain.Thresholds) (domain.Thresholds, error) {
	if s.cache == nil {
		return defaults, nil
	}
	t, err := s.cache.Get(ctx)
	if err != nil {
		if err == domain.ErrNotFound {
			return defaults, nil
		}
		return domain.Thresholds{}, err
	}
	return t, nil
}

// SetThresholds stores new execution bounds.
func (s *ExecutionService) SetThresholds(ctx context.Context, t domain.Thresholds) error {
	if s.cache == nil {
		return fmt.Errorf("service: no threshold cache configured")
	}
	return s.cache.Set(ctx, t)
}

// lockKeyFor derives the opportunity lock key. Two submissions targeting the
// same liquidation victim, or borrowing the same primary asset for the same
// strategy, contend on the same key.
func lockKeyFor(sub Submission) string {
	if req, ok := sub.Request.(*domain.LiquidationRequest); ok {
		return strings.ToLower(fmt.Sprintf("liquidation:%s:%s", req.Pool.Hex(), req.User.Hex()))
	}
	return strings.ToLower(fmt.Sprintf("%s:%s", sub.Request.Kind(), sub.Assets[0].Hex()))
}
