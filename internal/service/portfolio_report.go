package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"polymirror/internal/repository"
)

type WalletSummary struct {
	repository.PositionsSummary
	UnprocessedTrades int64 `json:"unprocessed_trades"`
}

// PortfolioReporter aggregates stored positions per wallet for display.
type PortfolioReporter struct {
	Repo    repository.Repository
	Wallets []string
	Logger  *zap.Logger
}

func (r *PortfolioReporter) Summaries(ctx context.Context) ([]WalletSummary, error) {
	if r == nil || r.Repo == nil {
		return nil, nil
	}
	out := make([]WalletSummary, 0, len(r.Wallets))
	for _, wallet := range r.Wallets {
		sum, err := r.Repo.PositionsSummary(ctx, wallet)
		if err != nil {
			return nil, err
		}
		pending, err := r.Repo.CountUnprocessedActivities(ctx, wallet)
		if err != nil {
			return nil, err
		}
		sum.Wallet = wallet
		out = append(out, WalletSummary{PositionsSummary: sum, UnprocessedTrades: pending})
	}
	return out, nil
}

// LogSnapshot writes one line per wallet.
func (r *PortfolioReporter) LogSnapshot(ctx context.Context) {
	if r == nil || r.Logger == nil {
		return
	}
	items, err := r.Summaries(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.Logger.Warn("portfolio snapshot failed", zap.Error(err))
		}
		return
	}
	for _, item := range items {
		r.Logger.Info("portfolio",
			zap.String("wallet", item.Wallet),
			zap.Int64("open_positions", item.OpenPositions),
			zap.String("initial_value", item.TotalInitialValue.StringFixed(2)),
			zap.String("current_value", item.TotalCurrentValue.StringFixed(2)),
			zap.String("cash_pnl", item.TotalCashPnL.StringFixed(2)),
			zap.Int64("unprocessed_trades", item.UnprocessedTrades),
		)
	}
}
