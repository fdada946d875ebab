package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"polymirror/internal/models"
)

// ActivityRepository is the per-wallet trade log. Rows are insert-once.
type ActivityRepository interface {
	FindActivityByTxHash(ctx context.Context, wallet, txHash string) (*models.TradeActivity, error)
	// InsertActivity inserts item unless (wallet, transaction_hash) exists.
	// The bool reports whether a row was created.
	InsertActivity(ctx context.Context, item *models.TradeActivity) (bool, error)
	// MarkAllActivitiesProcessed flips every unprocessed row to processed.
	MarkAllActivitiesProcessed(ctx context.Context) (int64, error)
	MarkActivityProcessed(ctx context.Context, id uint64, attempts int) error
	GetActivityByID(ctx context.Context, id uint64) (*models.TradeActivity, error)
	ListActivities(ctx context.Context, params ListActivitiesParams) ([]models.TradeActivity, error)
	CountUnprocessedActivities(ctx context.Context, wallet string) (int64, error)
}

// PositionRepository holds the latest exchange-reported position snapshot.
type PositionRepository interface {
	UpsertPosition(ctx context.Context, item *models.WalletPosition) error
	ListPositions(ctx context.Context, wallet string) ([]models.WalletPosition, error)
	ListPositionAssets(ctx context.Context) ([]string, error)
	PositionsSummary(ctx context.Context, wallet string) (PositionsSummary, error)
}

type Repository interface {
	ActivityRepository
	PositionRepository
}

type ListActivitiesParams struct {
	Wallet    string
	Processed *bool
	Limit     int
	Offset    int
}

type PositionsSummary struct {
	Wallet            string          `json:"wallet"`
	OpenPositions     int64           `json:"open_positions"`
	TotalInitialValue decimal.Decimal `json:"total_initial_value"`
	TotalCurrentValue decimal.Decimal `json:"total_current_value"`
	TotalCashPnL      decimal.Decimal `json:"total_cash_pnl"`
	TotalRealizedPnL  decimal.Decimal `json:"total_realized_pnl"`
}
