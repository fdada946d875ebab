package clob

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EventBook           = "book"
	EventPriceChange    = "price_change"
	EventLastTradePrice = "last_trade_price"
	EventTickSizeChange = "tick_size_change"
)

var ErrNotJSON = errors.New("clob: frame is not json")

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type PriceChange struct {
	AssetID string
	Side    string
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// MarketEvent is one decoded market channel event. Only the fields relevant
// to its Type are populated.
type MarketEvent struct {
	Type    string
	AssetID string
	Market  string
	Bids    []Level
	Asks    []Level
	Changes []PriceChange
}

// IsPong reports whether the frame is the server's reply to a PING.
func IsPong(raw []byte) bool {
	return strings.EqualFold(strings.TrimSpace(string(raw)), "pong")
}

// DecodeMarketMessage decodes a frame that holds a single event object or an
// array of them. Elements that cannot be decoded are skipped.
func DecodeMarketMessage(raw []byte) ([]MarketEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrNotJSON
	}
	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	case '{':
		items = []json.RawMessage{trimmed}
	default:
		return nil, ErrNotJSON
	}

	out := make([]MarketEvent, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		if ev, ok := decodeEvent(obj); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func decodeEvent(obj map[string]json.RawMessage) (MarketEvent, bool) {
	ev := MarketEvent{
		Type:    strings.ToLower(rawString(firstRaw(obj, "event_type", "type"))),
		AssetID: rawString(obj["asset_id"]),
		Market:  rawString(obj["market"]),
	}
	switch ev.Type {
	case EventBook:
		if ev.AssetID == "" {
			return MarketEvent{}, false
		}
		ev.Bids = parseLevels(firstRaw(obj, "bids", "buys"))
		ev.Asks = parseLevels(firstRaw(obj, "asks", "sells"))
	case EventPriceChange:
		ev.Changes = parsePriceChanges(obj, ev.AssetID)
	case EventLastTradePrice, EventTickSizeChange:
		if ev.AssetID == "" {
			return MarketEvent{}, false
		}
	case "":
		return MarketEvent{}, false
	}
	return ev, true
}

// parsePriceChanges accepts the current shape, where every entry carries its
// own asset_id under price_changes, and the legacy shape with one asset_id at
// the top and entries under changes.
func parsePriceChanges(obj map[string]json.RawMessage, assetID string) []PriceChange {
	var entries []map[string]json.RawMessage
	if raw, ok := obj["price_changes"]; ok {
		_ = json.Unmarshal(raw, &entries)
	} else if raw, ok := obj["changes"]; ok {
		_ = json.Unmarshal(raw, &entries)
	}
	out := make([]PriceChange, 0, len(entries))
	for _, entry := range entries {
		ch := PriceChange{
			AssetID: rawString(entry["asset_id"]),
			Side:    strings.ToUpper(rawString(entry["side"])),
		}
		if ch.AssetID == "" {
			ch.AssetID = assetID
		}
		price, ok := parseDecimal(entry["price"])
		if !ok || ch.AssetID == "" {
			continue
		}
		size, ok := parseDecimal(firstRaw(entry, "size", "qty", "amount"))
		if !ok {
			continue
		}
		ch.Price = price
		ch.Size = size
		out = append(out, ch)
	}
	return out
}

func parseLevels(raw json.RawMessage) []Level {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]Level, 0, len(items))
	for _, item := range items {
		if level, ok := parseLevel(item); ok {
			out = append(out, level)
		}
	}
	return out
}

func parseLevel(raw json.RawMessage) (Level, bool) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) >= 2 {
		price, okP := parseDecimal(pair[0])
		size, okS := parseDecimal(pair[1])
		return Level{Price: price, Size: size}, okP && okS
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Level{}, false
	}
	price, okP := parseDecimal(obj["price"])
	size, okS := parseDecimal(firstRaw(obj, "size", "qty", "amount"))
	return Level{Price: price, Size: size}, okP && okS
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		return d, err == nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(string(raw)))
	return d, err == nil
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(s)
}

func firstRaw(m map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}
