package domain

import (
	"context"
	"time"
)

// ExecutionReportStore persists terminated execution reports for the control
// plane. Implemented by the postgres store.
type ExecutionReportStore interface {
	Create(ctx context.Context, report ExecutionReport) error
	GetByID(ctx context.Context, id string) (ExecutionReport, error)
	List(ctx context.Context, limit int) ([]ExecutionReport, error)
	ListByStrategy(ctx context.Context, strategy string, limit int) ([]ExecutionReport, error)
}

// Thresholds are the control-plane-editable execution bounds.
type Thresholds struct {
	MinProfitWei      string `json:"min_profit_wei"`
	MaxPriceImpactBps int64  `json:"max_price_impact_bps"`
	MaxSlippageBps    int64  `json:"max_slippage_bps"`
	DeadlineSeconds   int64  `json:"deadline_seconds"`
}

// ThresholdCache stores the live thresholds shared between the API and the
// engine. Implemented by the redis cache.
type ThresholdCache interface {
	Get(ctx context.Context) (Thresholds, error)
	Set(ctx context.Context, t Thresholds) error
}

// LockManager provides short-lived exclusive locks so two submissions for
// the same opportunity do not both spend gas racing each other. Losing the
// race on-chain is still handled by validation; the lock only saves the
// wasted attempt.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ReportArchiver writes terminated execution reports to long-term storage.
// Implemented by the S3 archiver.
type ReportArchiver interface {
	Archive(ctx context.Context, report ExecutionReport) error
}
