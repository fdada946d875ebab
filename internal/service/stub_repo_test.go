package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	polymarketdata "polymirror/internal/client/polymarket/data"
	"polymirror/internal/models"
	"polymirror/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
type stubRepo struct {
	mu         sync.Mutex
	nextID     uint64
	activities []models.TradeActivity
	positions  map[string]models.WalletPosition
	markCalls  int
	markErr    error
	upsertErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{positions: map[string]models.WalletPosition{}}
}

func (s *stubRepo) FindActivityByTxHash(ctx context.Context, wallet, txHash string) (*models.TradeActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.activities {
		if s.activities[i].Wallet == wallet && s.activities[i].TransactionHash == txHash {
			item := s.activities[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) InsertActivity(ctx context.Context, item *models.TradeActivity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activities {
		if a.Wallet == item.Wallet && a.TransactionHash == item.TransactionHash {
			return false, nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	s.activities = append(s.activities, *item)
	return true, nil
}

func (s *stubRepo) MarkAllActivitiesProcessed(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if s.markErr != nil {
		return 0, s.markErr
	}
	var n int64
	for i := range s.activities {
		if !s.activities[i].Processed {
			s.activities[i].Processed = true
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) MarkActivityProcessed(ctx context.Context, id uint64, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.activities {
		if s.activities[i].ID == id {
			s.activities[i].Processed = true
			s.activities[i].ExecutionAttempts = attempts
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubRepo) GetActivityByID(ctx context.Context, id uint64) (*models.TradeActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.activities {
		if s.activities[i].ID == id {
			item := s.activities[i]
			return &item, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]models.TradeActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.TradeActivity{}
	for _, a := range s.activities {
		if params.Wallet != "" && a.Wallet != params.Wallet {
			continue
		}
		if params.Processed != nil && a.Processed != *params.Processed {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *stubRepo) CountUnprocessedActivities(ctx context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.activities {
		if a.Wallet == wallet && !a.Processed {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) UpsertPosition(ctx context.Context, item *models.WalletPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.positions[item.Wallet+"|"+item.Asset+"|"+item.ConditionID] = *item
	return nil
}

func (s *stubRepo) ListPositions(ctx context.Context, wallet string) ([]models.WalletPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.WalletPosition{}
	for _, p := range s.positions {
		if p.Wallet == wallet {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (s *stubRepo) ListPositionAssets(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	out := []string{}
	for _, p := range s.positions {
		if _, ok := seen[p.Asset]; ok {
			continue
		}
		seen[p.Asset] = struct{}{}
		out = append(out, p.Asset)
	}
	sort.Strings(out)
	return out, nil
}

func (s *stubRepo) PositionsSummary(ctx context.Context, wallet string) (repository.PositionsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := repository.PositionsSummary{Wallet: wallet}
	for _, p := range s.positions {
		if p.Wallet != wallet || !p.Size.GreaterThan(decimal.Zero) {
			continue
		}
		sum.OpenPositions++
		sum.TotalInitialValue = sum.TotalInitialValue.Add(p.InitialValue)
		sum.TotalCurrentValue = sum.TotalCurrentValue.Add(p.CurrentValue)
		sum.TotalCashPnL = sum.TotalCashPnL.Add(p.CashPnL)
		sum.TotalRealizedPnL = sum.TotalRealizedPnL.Add(p.RealizedPnL)
	}
	return sum, nil
}

func (s *stubRepo) activityCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activities)
}

// stubSource serves canned Data API responses per wallet.
type stubSource struct {
	mu          sync.Mutex
	activities  map[string][]polymarketdata.Activity
	positions   map[string][]polymarketdata.Position
	activityErr map[string]error
	positionErr error
	positionHit map[string]int
}

func newStubSource() *stubSource {
	return &stubSource{
		activities:  map[string][]polymarketdata.Activity{},
		positions:   map[string][]polymarketdata.Position{},
		activityErr: map[string]error{},
		positionHit: map[string]int{},
	}
}

func (s *stubSource) GetActivity(ctx context.Context, user string, params polymarketdata.ActivityParams) ([]polymarketdata.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activityErr[user]; err != nil {
		return nil, err
	}
	return s.activities[user], nil
}

func (s *stubSource) GetPositions(ctx context.Context, user string, params polymarketdata.PositionParams) ([]polymarketdata.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positionHit[user]++
	if s.positionErr != nil {
		return nil, s.positionErr
	}
	return s.positions[user], nil
}

func (s *stubRepo) marks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCalls
}

func (s *stubSource) setActivities(wallet string, items ...polymarketdata.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[wallet] = items
}

func (s *stubSource) positionCalls(wallet string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionHit[wallet]
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
}

func (n *recordingNotifier) NotifyNewAssets(ids []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, append([]string(nil), ids...))
}

func (n *recordingNotifier) all() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]string(nil), n.calls...)
}

type recordingPublisher struct {
	mu  sync.Mutex
	txs []string
}

func (p *recordingPublisher) PublishTrade(ctx context.Context, item *models.TradeActivity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, item.TransactionHash)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.txs...)
}

func dec(v string) polymarketdata.Decimal {
	return polymarketdata.Decimal{Decimal: decimal.RequireFromString(v)}
}

var _ repository.Repository = (*stubRepo)(nil)
