package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	polymarketdata "polymirror/internal/client/polymarket/data"
	"polymirror/internal/models"
	"polymirror/internal/repository"
)

// PositionSyncService replaces the stored position snapshot of a wallet with
// what the Data API reports.
type PositionSyncService struct {
	Repo    repository.PositionRepository
	Source  PositionSource
	Tracker *AssetTracker
	Wallets []string
	Logger  *zap.Logger
	Now     func() time.Time
}

func (s *PositionSyncService) SyncWallet(ctx context.Context, wallet string) (int, error) {
	if s == nil || s.Repo == nil || s.Source == nil {
		return 0, nil
	}
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return 0, nil
	}
	positions, err := s.Source.GetPositions(ctx, wallet, polymarketdata.PositionParams{})
	if err != nil {
		return 0, fmt.Errorf("get positions %s: %w", wallet, err)
	}

	syncedAt := s.now()
	assets := make([]string, 0, len(positions))
	items := make([]*models.WalletPosition, 0, len(positions))
	for _, p := range positions {
		item := positionFromAPI(wallet, p, syncedAt)
		if item.Asset == "" {
			continue
		}
		assets = append(assets, item.Asset)
		items = append(items, item)
	}
	// Track before writing so a store failure does not leave held assets
	// without a live book.
	if s.Tracker != nil {
		s.Tracker.Track(assets)
	}

	synced := 0
	for _, item := range items {
		if err := s.Repo.UpsertPosition(ctx, item); err != nil {
			return synced, fmt.Errorf("upsert position %s/%s: %w", wallet, item.Asset, err)
		}
		synced++
	}
	if s.Logger != nil {
		s.Logger.Debug("positions synced", zap.String("wallet", wallet), zap.Int("positions", synced))
	}
	return synced, nil
}

// SyncAll syncs every configured wallet. One failing wallet does not stop
// the others; all errors are returned joined.
func (s *PositionSyncService) SyncAll(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, wallet := range s.Wallets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.SyncWallet(ctx, wallet); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunSyncAll is the cron entry point.
func (s *PositionSyncService) RunSyncAll(ctx context.Context) {
	err := s.SyncAll(ctx)
	if err == nil || errors.Is(err, context.Canceled) || polymarketdata.IsTimeout(err) {
		return
	}
	if s.Logger != nil {
		s.Logger.Warn("position sync failed", zap.Error(err))
	}
}

func (s *PositionSyncService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func positionFromAPI(wallet string, p polymarketdata.Position, syncedAt time.Time) *models.WalletPosition {
	return &models.WalletPosition{
		Wallet:             wallet,
		Asset:              strings.TrimSpace(p.Asset),
		ConditionID:        strings.TrimSpace(p.ConditionID),
		Size:               p.Size.Decimal,
		AvgPrice:           p.AvgPrice.Decimal,
		InitialValue:       p.InitialValue.Decimal,
		CurrentValue:       p.CurrentValue.Decimal,
		CashPnL:            p.CashPnL.Decimal,
		PercentPnL:         p.PercentPnL.Decimal,
		TotalBought:        p.TotalBought.Decimal,
		RealizedPnL:        p.RealizedPnL.Decimal,
		PercentRealizedPnL: p.PercentRealizedPnL.Decimal,
		CurPrice:           p.CurPrice.Decimal,
		Redeemable:         p.Redeemable,
		Mergeable:          p.Mergeable,
		NegativeRisk:       p.NegativeRisk,
		Title:              p.Title,
		Slug:               p.Slug,
		Icon:               p.Icon,
		EventSlug:          p.EventSlug,
		Outcome:            p.Outcome,
		OutcomeIndex:       int(p.OutcomeIndex),
		OppositeOutcome:    p.OppositeOutcome,
		OppositeAsset:      p.OppositeAsset,
		EndDate:            p.EndDate,
		SyncedAt:           syncedAt,
	}
}
