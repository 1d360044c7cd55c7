package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockbit-hama/xCrack-sub003/internal/domain"
)

// ExecutionReportStore implements domain.ExecutionReportStore using
// PostgreSQL.
type ExecutionReportStore struct {
	pool *pgxpool.Pool
}

// NewExecutionReportStore creates a new ExecutionReportStore.
func NewExecutionReportStore(pool *pgxpool.Pool) *ExecutionReportStore {
	return &ExecutionReportStore{pool: pool}
}

const reportColumns = `id, strategy, status, abort_reason, assets, amounts, gross_profit, net_profit, started_at, completed_at, duration_ms`

// Create inserts a terminated execution report.
func (s *ExecutionReportStore) Create(ctx context.Context, report domain.ExecutionReport) error {
	assets := make([]string, len(report.Assets))
	for i, a := range report.Assets {
		assets[i] = a.Hex()
	}
	amounts := make([]string, len(report.Amounts))
	for i, a := range report.Amounts {
		amounts[i] = a.String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_reports (`+reportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		report.ID, report.StrategyName, string(report.Status), nullable(report.AbortReason),
		assets, amounts, bigStr(report.GrossProfit), bigStr(report.NetProfit),
		report.StartedAt, report.CompletedAt, report.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution_report: %w", err)
	}
	return nil
}

// GetByID returns one report.
func (s *ExecutionReportStore) GetByID(ctx context.Context, id string) (domain.ExecutionReport, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+reportColumns+` FROM execution_reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionReport{}, domain.ErrNotFound
		}
		return domain.ExecutionReport{}, fmt.Errorf("postgres: get execution_report %s: %w", id, err)
	}
	return report, nil
}

// List returns the most recent reports across all strategies.
func (s *ExecutionReportStore) List(ctx context.Context, limit int) ([]domain.ExecutionReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportColumns+` FROM execution_reports
		ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_reports: %w", err)
	}
	return collectReports(rows)
}

// ListByStrategy returns the most recent reports for one strategy.
func (s *ExecutionReportStore) ListByStrategy(ctx context.Context, strategy string, limit int) ([]domain.ExecutionReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportColumns+` FROM execution_reports
		WHERE strategy = $1 ORDER BY started_at DESC LIMIT $2`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution_reports by strategy: %w", err)
	}
	return collectReports(rows)
}

func collectReports(rows pgx.Rows) ([]domain.ExecutionReport, error) {
	defer rows.Close()
	var list []domain.ExecutionReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, report)
	}
	return list, rows.Err()
}

func scanReport(row pgx.Row) (domain.ExecutionReport, error) {
	var (
		report      domain.ExecutionReport
		status      string
		abortReason *string
		assets      []string
		amounts     []string
		gross, net  *string
	)
	err := row.Scan(&report.ID, &report.StrategyName, &status, &abortReason,
		&assets, &amounts, &gross, &net,
		&report.StartedAt, &report.CompletedAt, &report.DurationMs)
	if err != nil {
		return domain.ExecutionReport{}, err
	}

	report.Status = domain.ExecutionStatus(status)
	if abortReason != nil {
		report.AbortReason = *abortReason
	}
	if kind, ok := domain.ParseStrategyKind(report.StrategyName); ok {
		report.Strategy = kind
	}
	report.Assets = make([]common.Address, len(assets))
	for i, a := range assets {
		report.Assets[i] = common.HexToAddress(a)
	}
	report.Amounts = make([]*big.Int, len(amounts))
	for i, a := range amounts {
		n, ok := new(big.Int).SetString(a, 10)
		if !ok {
			return domain.ExecutionReport{}, fmt.Errorf("postgres: malformed amount %q in report %s", a, report.ID)
		}
		report.Amounts[i] = n
	}
	report.GrossProfit = parseBig(gross)
	report.NetProfit = parseBig(net)
	return report, nil
}

func bigStr(n *big.Int) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}

func parseBig(s *string) *big.Int {
	if s == nil {
		return nil
	}
	n, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return n
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
