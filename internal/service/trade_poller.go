package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	polymarketdata "polymirror/internal/client/polymarket/data"
	"polymirror/internal/models"
	"polymirror/internal/repository"
)

// WalletSyncer refreshes one wallet's positions.
type WalletSyncer interface {
	SyncWallet(ctx context.Context, wallet string) (int, error)
}

// SnapshotLogger displays the portfolio before polling starts.
type SnapshotLogger interface {
	LogSnapshot(ctx context.Context)
}

type TradePollerOptions struct {
	Wallets            []string
	TooOld             time.Duration
	Interval           time.Duration
	ActivityLimit      int
	PositionSampleRate float64
	// MaxConcurrency caps concurrent wallet fetches. Zero means one
	// goroutine per wallet.
	MaxConcurrency int
}

type CycleResult struct {
	ID            string
	Wallets       int
	Fetched       int
	New           int
	Duplicates    int
	TooOld        int
	Errors        int
	Timeouts      int
	PositionSyncs int
	Duration      time.Duration
}

func (r *CycleResult) merge(o CycleResult) {
	r.Fetched += o.Fetched
	r.New += o.New
	r.Duplicates += o.Duplicates
	r.TooOld += o.TooOld
	r.Errors += o.Errors
	r.Timeouts += o.Timeouts
	r.PositionSyncs += o.PositionSyncs
}

// TradePoller polls every watched wallet for new trades, persists the unseen
// ones and reports their assets to the tracker.
type TradePoller struct {
	Repo      repository.ActivityRepository
	Source    ActivitySource
	Tracker   *AssetTracker
	Positions WalletSyncer
	Publisher TradePublisher
	Reporter  SnapshotLogger
	Logger    *zap.Logger
	Opts      TradePollerOptions

	Now  func() time.Time
	Rand func() float64

	warmMu sync.Mutex
	warm   atomic.Bool

	stopped  atomic.Bool
	timeouts atomic.Int64
	cycles   atomic.Int64
}

// Run shows the initial portfolio, marks the stored backlog processed and
// then polls until ctx is done or Stop is called. Cycles run on a context
// detached from ctx, so a cycle in flight always completes.
func (p *TradePoller) Run(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.Reporter != nil {
		p.Reporter.LogSnapshot(ctx)
	}
	interval := p.Opts.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if p.Logger != nil {
		p.Logger.Info("trade poller started",
			zap.Int("wallets", len(p.Opts.Wallets)),
			zap.Duration("interval", interval),
			zap.Duration("too_old", p.Opts.TooOld),
		)
	}
	cycleCtx := context.WithoutCancel(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if p.stopped.Load() {
			return nil
		}
		// No polling until the backlog is marked, or old trades would look live.
		if err := p.WarmUp(cycleCtx); err != nil {
			timer.Reset(interval)
			continue
		}
		res := p.PollOnce(cycleCtx)
		if p.Logger != nil && (res.New > 0 || res.Errors > 0) {
			p.Logger.Info("poll cycle",
				zap.String("cycle_id", res.ID),
				zap.Int("new", res.New),
				zap.Int("fetched", res.Fetched),
				zap.Int("errors", res.Errors),
				zap.Int("timeouts", res.Timeouts),
				zap.Duration("took", res.Duration),
			)
		}
		if p.stopped.Load() {
			return nil
		}
		timer.Reset(interval)
	}
}

func (p *TradePoller) Stop() {
	if p == nil {
		return
	}
	p.stopped.Store(true)
}

// WarmedUp reports whether the startup backlog has been marked processed.
func (p *TradePoller) WarmedUp() bool {
	return p != nil && p.warm.Load()
}

func (p *TradePoller) Timeouts() int64 {
	return p.timeouts.Load()
}

func (p *TradePoller) Cycles() int64 {
	return p.cycles.Load()
}

// PollOnce runs one cycle over all wallets. Wallet failures are isolated and
// never abort siblings.
func (p *TradePoller) PollOnce(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{ID: uuid.NewString(), Wallets: len(p.Opts.Wallets)}

	var mu sync.Mutex
	var g errgroup.Group
	if p.Opts.MaxConcurrency > 0 {
		g.SetLimit(p.Opts.MaxConcurrency)
	}
	for _, wallet := range p.Opts.Wallets {
		g.Go(func() error {
			r := p.pollWallet(ctx, wallet)
			mu.Lock()
			res.merge(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.cycles.Add(1)
	res.Duration = time.Since(start)
	return res
}

// WarmUp marks every stored trade processed, once per process. Trades
// persisted before the first poll predate the mirror and must not be copied.
// A failed attempt leaves the poller cold so the next call retries.
func (p *TradePoller) WarmUp(ctx context.Context) error {
	if p.warm.Load() {
		return nil
	}
	p.warmMu.Lock()
	defer p.warmMu.Unlock()
	if p.warm.Load() {
		return nil
	}
	n, err := p.Repo.MarkAllActivitiesProcessed(ctx)
	if err != nil {
		if p.Logger != nil && !errors.Is(err, context.Canceled) {
			p.Logger.Warn("mark existing trades processed failed", zap.Error(err))
		}
		return fmt.Errorf("mark existing trades processed: %w", err)
	}
	p.warm.Store(true)
	if p.Logger != nil {
		p.Logger.Info("existing trades marked processed", zap.Int64("rows", n))
	}
	return nil
}

func (p *TradePoller) pollWallet(ctx context.Context, wallet string) CycleResult {
	var res CycleResult
	acts, err := p.Source.GetActivity(ctx, wallet, polymarketdata.ActivityParams{
		Type:  polymarketdata.ActivityTypeTrade,
		Limit: p.Opts.ActivityLimit,
	})
	if err != nil {
		p.recordError(&res, wallet, "fetch activity failed", err)
		return res
	}
	res.Fetched = len(acts)

	var cutoff int64
	if p.Opts.TooOld > 0 {
		cutoff = p.now().Add(-p.Opts.TooOld).Unix()
	}
	for _, act := range acts {
		if cutoff > 0 && int64(act.Timestamp) < cutoff {
			res.TooOld++
			continue
		}
		if t := strings.TrimSpace(act.Type); t != "" && !strings.EqualFold(t, polymarketdata.ActivityTypeTrade) {
			continue
		}
		txHash := strings.TrimSpace(act.TransactionHash)
		if txHash == "" {
			continue
		}
		existing, err := p.Repo.FindActivityByTxHash(ctx, wallet, txHash)
		if err != nil {
			p.recordError(&res, wallet, "lookup trade failed", err)
			continue
		}
		if existing != nil {
			res.Duplicates++
			continue
		}
		item := activityFromAPI(wallet, act)
		created, err := p.Repo.InsertActivity(ctx, item)
		if err != nil {
			p.recordError(&res, wallet, "insert trade failed", err)
			continue
		}
		if !created {
			res.Duplicates++
			continue
		}
		res.New++
		if p.Tracker != nil {
			p.Tracker.Track([]string{item.Asset})
		}
		if p.Logger != nil {
			p.Logger.Info("new trade",
				zap.String("wallet", wallet),
				zap.String("tx", txHash),
				zap.String("side", item.Side),
				zap.String("asset", item.Asset),
				zap.String("size", item.Size.String()),
				zap.String("price", item.Price.String()),
			)
		}
		p.publish(ctx, item)
	}

	if p.Positions != nil && p.sample() < p.Opts.PositionSampleRate {
		if _, err := p.Positions.SyncWallet(ctx, wallet); err != nil {
			p.recordError(&res, wallet, "position sync failed", err)
		} else {
			res.PositionSyncs++
		}
	}
	return res
}

// publish forwards a live trade. Nothing is published before warm-up.
func (p *TradePoller) publish(ctx context.Context, item *models.TradeActivity) {
	if p.Publisher == nil || !p.warm.Load() {
		return
	}
	if err := p.Publisher.PublishTrade(ctx, item); err != nil && p.Logger != nil {
		p.Logger.Warn("publish trade failed", zap.String("tx", item.TransactionHash), zap.Error(err))
	}
}

func (p *TradePoller) recordError(res *CycleResult, wallet, msg string, err error) {
	if polymarketdata.IsTimeout(err) {
		res.Timeouts++
		p.timeouts.Add(1)
		return
	}
	res.Errors++
	if p.Logger != nil && !errors.Is(err, context.Canceled) {
		p.Logger.Warn(msg, zap.String("wallet", wallet), zap.Error(err))
	}
}

func (p *TradePoller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *TradePoller) sample() float64 {
	if p.Rand != nil {
		return p.Rand()
	}
	return rand.Float64()
}

func activityFromAPI(wallet string, a polymarketdata.Activity) *models.TradeActivity {
	item := &models.TradeActivity{
		Wallet:          wallet,
		TransactionHash: strings.TrimSpace(a.TransactionHash),
		Timestamp:       int64(a.Timestamp),
		ConditionID:     strings.TrimSpace(a.ConditionID),
		Asset:           strings.TrimSpace(a.Asset),
		Side:            strings.ToUpper(strings.TrimSpace(a.Side)),
		Size:            a.Size.Decimal,
		USDCSize:        a.USDCSize.Decimal,
		Price:           a.Price.Decimal,
		Title:           a.Title,
		Slug:            a.Slug,
		Icon:            a.Icon,
		EventSlug:       a.EventSlug,
		Outcome:         a.Outcome,
		OutcomeIndex:    int(a.OutcomeIndex),
		Name:            a.Name,
		Pseudonym:       a.Pseudonym,
	}
	if len(a.Raw) > 0 {
		item.Payload = datatypes.JSON(a.Raw)
	}
	return item
}
