package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"polymirror/internal/models"
	"polymirror/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

// --- activities --------------------------------------------------------------

func (s *Store) FindActivityByTxHash(ctx context.Context, wallet, txHash string) (*models.TradeActivity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeActivity
	err := s.db.WithContext(ctx).
		Where("wallet = ?", normalizeWallet(wallet)).
		Where("transaction_hash = ?", strings.TrimSpace(txHash)).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertActivity(ctx context.Context, item *models.TradeActivity) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	item.Wallet = normalizeWallet(item.Wallet)
	item.TransactionHash = strings.TrimSpace(item.TransactionHash)
	if item.Wallet == "" || item.TransactionHash == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}, {Name: "transaction_hash"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkAllActivitiesProcessed(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.TradeActivity{}).
		Where("processed = ?", false).
		Updates(map[string]any{
			"processed":  true,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) MarkActivityProcessed(ctx context.Context, id uint64, attempts int) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if attempts < 0 {
		attempts = 0
	}
	res := s.db.WithContext(ctx).
		Model(&models.TradeActivity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed":          true,
			"execution_attempts": attempts,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) GetActivityByID(ctx context.Context, id uint64) (*models.TradeActivity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradeActivity
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]models.TradeActivity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeActivity{})
	if wallet := normalizeWallet(params.Wallet); wallet != "" {
		query = query.Where("wallet = ?", wallet)
	}
	if params.Processed != nil {
		query = query.Where("processed = ?", *params.Processed)
	}
	var items []models.TradeActivity
	err := query.
		Order("timestamp desc").
		Order("id desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountUnprocessedActivities(ctx context.Context, wallet string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	query := s.db.WithContext(ctx).Model(&models.TradeActivity{}).Where("processed = ?", false)
	if wallet = normalizeWallet(wallet); wallet != "" {
		query = query.Where("wallet = ?", wallet)
	}
	if err := query.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// --- positions ---------------------------------------------------------------

func (s *Store) UpsertPosition(ctx context.Context, item *models.WalletPosition) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Wallet = normalizeWallet(item.Wallet)
	item.Asset = strings.TrimSpace(item.Asset)
	item.ConditionID = strings.TrimSpace(item.ConditionID)
	if item.Wallet == "" || item.Asset == "" {
		return nil
	}
	if item.SyncedAt.IsZero() {
		item.SyncedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "asset"}, {Name: "condition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"size",
			"avg_price",
			"initial_value",
			"current_value",
			"cash_pnl",
			"percent_pnl",
			"total_bought",
			"realized_pnl",
			"percent_realized_pnl",
			"cur_price",
			"redeemable",
			"mergeable",
			"negative_risk",
			"title",
			"slug",
			"icon",
			"event_slug",
			"outcome",
			"outcome_index",
			"opposite_outcome",
			"opposite_asset",
			"end_date",
			"synced_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListPositions(ctx context.Context, wallet string) ([]models.WalletPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.WalletPosition{})
	if wallet = normalizeWallet(wallet); wallet != "" {
		query = query.Where("wallet = ?", wallet)
	}
	var items []models.WalletPosition
	if err := query.Order("current_value desc").Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPositionAssets(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var assets []string
	err := s.db.WithContext(ctx).
		Model(&models.WalletPosition{}).
		Where("size > 0").
		Distinct("asset").
		Pluck("asset", &assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *Store) PositionsSummary(ctx context.Context, wallet string) (repository.PositionsSummary, error) {
	wallet = normalizeWallet(wallet)
	out := repository.PositionsSummary{Wallet: wallet}
	if s == nil || s.db == nil {
		return out, nil
	}
	var row struct {
		OpenPositions     int64   `gorm:"column:open_positions"`
		TotalInitialValue float64 `gorm:"column:total_initial_value"`
		TotalCurrentValue float64 `gorm:"column:total_current_value"`
		TotalCashPnL      float64 `gorm:"column:total_cash_pnl"`
		TotalRealizedPnL  float64 `gorm:"column:total_realized_pnl"`
	}
	err := s.db.WithContext(ctx).
		Table("wallet_positions").
		Select(`
			COALESCE(SUM(CASE WHEN size > 0 THEN 1 ELSE 0 END),0) AS open_positions,
			COALESCE(SUM(initial_value),0) AS total_initial_value,
			COALESCE(SUM(current_value),0) AS total_current_value,
			COALESCE(SUM(cash_pnl),0) AS total_cash_pnl,
			COALESCE(SUM(realized_pnl),0) AS total_realized_pnl
		`).
		Where("wallet = ?", wallet).
		Scan(&row).Error
	if err != nil {
		return out, err
	}
	out.OpenPositions = row.OpenPositions
	out.TotalInitialValue = decimal.NewFromFloat(row.TotalInitialValue)
	out.TotalCurrentValue = decimal.NewFromFloat(row.TotalCurrentValue)
	out.TotalCashPnL = decimal.NewFromFloat(row.TotalCashPnL)
	out.TotalRealizedPnL = decimal.NewFromFloat(row.TotalRealizedPnL)
	return out, nil
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

func normalizeLimit(limit int, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
