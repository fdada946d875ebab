// Package orderbook keeps the live per-asset ladders built from the market
// feed. Only the feed writes to it; everything else reads through Read.
package orderbook

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Side int

const (
	SideUnknown Side = iota
	SideBid
	SideAsk
)

// ParseSide maps exchange side strings onto a ladder. BUY orders rest on the
// bid side, SELL orders on the ask side.
func ParseSide(raw string) Side {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "BID", "BIDS":
		return SideBid
	case "SELL", "ASK", "ASKS":
		return SideAsk
	default:
		return SideUnknown
	}
}

type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type Change struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

type Snapshot struct {
	AssetID   string    `json:"asset_id"`
	Market    string    `json:"market,omitempty"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Snapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

func (s Snapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

type book struct {
	market    string
	bids      []Level
	asks      []Level
	updatedAt time.Time
}

type Cache struct {
	mu    sync.RWMutex
	books map[string]*book
	now   func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		books: map[string]*book{},
		now:   time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Read returns the ladders of assetID when they were updated less than
// maxAge ago. A false result means "no fresh data" and callers should fall
// back to another price source.
func (c *Cache) Read(assetID string, maxAge time.Duration) (Snapshot, bool) {
	assetID = strings.TrimSpace(assetID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[assetID]
	if !ok {
		return Snapshot{}, false
	}
	if c.now().Sub(b.updatedAt) >= maxAge {
		return Snapshot{}, false
	}
	return Snapshot{
		AssetID:   assetID,
		Market:    b.market,
		Bids:      copyLevels(b.bids),
		Asks:      copyLevels(b.asks),
		UpdatedAt: b.updatedAt,
	}, true
}

// ReplaceBook installs a full snapshot for assetID.
func (c *Cache) ReplaceBook(assetID, market string, bids, asks []Level) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return
	}
	next := &book{
		market: market,
		bids:   sanitize(bids),
		asks:   sanitize(asks),
	}
	sortLadder(next.bids, SideBid)
	sortLadder(next.asks, SideAsk)

	c.mu.Lock()
	defer c.mu.Unlock()
	next.updatedAt = c.now()
	c.books[assetID] = next
}

// ApplyChanges applies price level deltas. A change replaces whatever sits at
// its price; a zero size removes the level.
func (c *Cache) ApplyChanges(assetID string, changes []Change) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[assetID]
	if !ok {
		b = &book{}
		c.books[assetID] = b
	}
	touchedBids, touchedAsks := false, false
	for _, ch := range changes {
		switch ch.Side {
		case SideBid:
			b.bids = applyLevel(b.bids, ch)
			touchedBids = true
		case SideAsk:
			b.asks = applyLevel(b.asks, ch)
			touchedAsks = true
		}
	}
	if touchedBids {
		sortLadder(b.bids, SideBid)
	}
	if touchedAsks {
		sortLadder(b.asks, SideAsk)
	}
	b.updatedAt = c.now()
}

// Touch refreshes the timestamp of an existing book.
func (c *Cache) Touch(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.books[strings.TrimSpace(assetID)]; ok {
		b.updatedAt = c.now()
	}
}

// Reset drops every book. Called on each fresh feed connection.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books = map[string]*book{}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}

type Stats struct {
	Assets    int `json:"assets"`
	BidLevels int `json:"bid_levels"`
	AskLevels int `json:"ask_levels"`
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Stats{Assets: len(c.books)}
	for _, b := range c.books {
		st.BidLevels += len(b.bids)
		st.AskLevels += len(b.asks)
	}
	return st
}

func applyLevel(levels []Level, ch Change) []Level {
	out := levels[:0]
	for _, lvl := range levels {
		if lvl.Price.Equal(ch.Price) {
			continue
		}
		out = append(out, lvl)
	}
	if ch.Size.GreaterThan(decimal.Zero) {
		out = append(out, Level{Price: ch.Price, Size: ch.Size})
	}
	return out
}

func sortLadder(levels []Level, side Side) {
	sort.SliceStable(levels, func(i, j int) bool {
		if side == SideBid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

func sanitize(levels []Level) []Level {
	out := make([]Level, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Size.LessThanOrEqual(decimal.Zero) {
			continue
		}
		out = append(out, lvl)
	}
	return out
}

func copyLevels(levels []Level) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}
