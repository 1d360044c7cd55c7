package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// thresholdsKey is the hash holding the live execution bounds shared between
// the control plane and the engine.
const thresholdsKey = "engine:thresholds"

// ThresholdCache implements domain.ThresholdCache using a Redis hash.
type ThresholdCache struct {
	rdb *redis.Client
}

// NewThresholdCache creates a ThresholdCache backed by the given Client.
func NewThresholdCache(c *Client) *ThresholdCache {
	return &ThresholdCache{rdb: c.Underlying()}
}

// Get retrieves the live thresholds. It returns domain.ErrNotFound when no
// thresholds have been stored yet; callers fall back to the configured
// defaults.
func (tc *ThresholdCache) Get(ctx context.Context) (domain.Thresholds, error) {
	vals, err := tc.rdb.HGetAll(ctx, thresholdsKey).Result()
	if err != nil {
		return domain.Thresholds{}, fmt.Errorf("redis: get thresholds: %w", err)
	}
	if len(vals) == 0 {
		return domain.Thresholds{}, domain.ErrNotFound
	}

	t := domain.Thresholds{MinProfitWei: vals["min_profit_wei"]}
	if t.MaxPriceImpactBps, err = strconv.ParseInt(vals["max_price_impact_bps"], 10, 64); err != nil {
		return domain.Thresholds{}, fmt.Errorf("redis: parse max_price_impact_bps: %w", err)
	}
	if t.MaxSlippageBps, err = strconv.ParseInt(vals["max_slippage_bps"], 10, 64); err != nil {
		return domain.Thresholds{}, fmt.Errorf("redis: parse max_slippage_bps: %w", err)
	}
	if t.DeadlineSeconds, err = strconv.ParseInt(vals["deadline_seconds"], 10, 64); err != nil {
		return domain.Thresholds{}, fmt.Errorf("redis: parse deadline_seconds: %w", err)
	}
	return t, nil
}

// Set stores the live thresholds.
func (tc *ThresholdCache) Set(ctx context.Context, t domain.Thresholds) error {
	fields := map[string]interface{}{
		"min_profit_wei":       t.MinProfitWei,
		"max_price_impact_bps": strconv.FormatInt(t.MaxPriceImpactBps, 10),
		"max_slippage_bps":     strconv.FormatInt(t.MaxSlippageBps, 10),
		"deadline_seconds":     strconv.FormatInt(t.DeadlineSeconds, 10),
	}
	if err := tc.rdb.HSet(ctx, thresholdsKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set thresholds: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ThresholdCache = (*ThresholdCache)(nil)
