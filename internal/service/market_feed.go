package service

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"polymirror/internal/client/polymarket/clob"
	"polymirror/internal/orderbook"
)

type FeedStats struct {
	Connected     bool            `json:"connected"`
	Connects      int64           `json:"connects"`
	Subscribed    int             `json:"subscribed"`
	TrackedAssets int             `json:"tracked_assets"`
	Messages      int64           `json:"messages"`
	Books         int64           `json:"books"`
	PriceChanges  int64           `json:"price_changes"`
	LastTrades    int64           `json:"last_trades"`
	Dropped       int64           `json:"dropped"`
	Cache         orderbook.Stats `json:"cache"`
}

// MarketFeedService owns the market stream and is the only writer of the
// order book cache.
type MarketFeedService struct {
	Cache   *orderbook.Cache
	Stream  *clob.MarketStream
	Tracker *AssetTracker
	Logger  *zap.Logger

	messages     atomic.Int64
	books        atomic.Int64
	priceChanges atomic.Int64
	lastTrades   atomic.Int64
	dropped      atomic.Int64
}

// NewMarketFeedService builds the stream around tracker: its snapshot is the
// subscription set on every connect, and it forwards new ids to the stream.
func NewMarketFeedService(cache *orderbook.Cache, tracker *AssetTracker, opts clob.MarketStreamOptions, logger *zap.Logger) *MarketFeedService {
	s := &MarketFeedService{
		Cache:   cache,
		Tracker: tracker,
		Logger:  logger,
	}
	if tracker != nil {
		opts.AssetIDProvider = tracker.AssetIDs
	}
	opts.OnConnect = s.onConnect
	if opts.Logger == nil {
		opts.Logger = logger
	}
	s.Stream = clob.NewMarketStream(opts)
	if tracker != nil {
		tracker.SetNotifier(s.Stream)
	}
	return s
}

func (s *MarketFeedService) Run(ctx context.Context) error {
	if s == nil || s.Stream == nil {
		return nil
	}
	return s.Stream.Run(ctx, s.HandleMessage)
}

func (s *MarketFeedService) Stop() {
	if s == nil || s.Stream == nil {
		return
	}
	s.Stream.Stop()
}

// Books from a previous connection may have missed deltas.
func (s *MarketFeedService) onConnect() {
	if s.Cache != nil {
		s.Cache.Reset()
	}
}

// HandleMessage applies one raw frame to the cache. Frames that do not decode
// are dropped without logging.
func (s *MarketFeedService) HandleMessage(raw []byte) {
	if s == nil || s.Cache == nil {
		return
	}
	s.messages.Add(1)
	if clob.IsPong(raw) {
		return
	}
	events, err := clob.DecodeMarketMessage(raw)
	if err != nil {
		s.dropped.Add(1)
		return
	}
	for _, ev := range events {
		s.apply(ev)
	}
}

func (s *MarketFeedService) apply(ev clob.MarketEvent) {
	switch ev.Type {
	case clob.EventBook:
		s.Cache.ReplaceBook(ev.AssetID, ev.Market, toLevels(ev.Bids), toLevels(ev.Asks))
		s.books.Add(1)
	case clob.EventPriceChange:
		byAsset := map[string][]orderbook.Change{}
		order := make([]string, 0, 1)
		for _, ch := range ev.Changes {
			if _, ok := byAsset[ch.AssetID]; !ok {
				order = append(order, ch.AssetID)
			}
			byAsset[ch.AssetID] = append(byAsset[ch.AssetID], orderbook.Change{
				Side:  orderbook.ParseSide(ch.Side),
				Price: ch.Price,
				Size:  ch.Size,
			})
		}
		for _, assetID := range order {
			s.Cache.ApplyChanges(assetID, byAsset[assetID])
		}
		s.priceChanges.Add(1)
	case clob.EventLastTradePrice:
		s.Cache.Touch(ev.AssetID)
		s.lastTrades.Add(1)
	}
}

func toLevels(in []clob.Level) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(in))
	for _, lvl := range in {
		out = append(out, orderbook.Level{Price: lvl.Price, Size: lvl.Size})
	}
	return out
}

func (s *MarketFeedService) Stats() FeedStats {
	st := FeedStats{
		Messages:     s.messages.Load(),
		Books:        s.books.Load(),
		PriceChanges: s.priceChanges.Load(),
		LastTrades:   s.lastTrades.Load(),
		Dropped:      s.dropped.Load(),
	}
	if s.Stream != nil {
		ss := s.Stream.Status()
		st.Connected = ss.Connected
		st.Connects = ss.Connects
		st.Subscribed = ss.Subscribed
	}
	if s.Tracker != nil {
		st.TrackedAssets = s.Tracker.Len()
	}
	if s.Cache != nil {
		st.Cache = s.Cache.Stats()
	}
	return st
}

// LogStatus is the periodic feed status line.
func (s *MarketFeedService) LogStatus(context.Context) {
	if s == nil || s.Logger == nil {
		return
	}
	st := s.Stats()
	s.Logger.Info("market feed status",
		zap.Bool("connected", st.Connected),
		zap.Int64("connects", st.Connects),
		zap.Int("subscribed", st.Subscribed),
		zap.Int("tracked_assets", st.TrackedAssets),
		zap.Int("cached_books", st.Cache.Assets),
		zap.Int64("messages", st.Messages),
		zap.Int64("books", st.Books),
		zap.Int64("price_changes", st.PriceChanges),
		zap.Int64("dropped", st.Dropped),
	)
}
