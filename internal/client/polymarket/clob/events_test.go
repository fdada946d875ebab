package clob

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecodeMarketMessage_Book(t *testing.T) {
	raw := []byte(`{"event_type":"book","asset_id":"A1","market":"0xm","bids":[{"price":"0.48","size":"10"},{"price":".47","size":"5"}],"asks":[{"price":"0.52","size":"3"}]}`)
	events, err := DecodeMarketMessage(raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, EventBook, ev.Type)
	require.Equal(t, "A1", ev.AssetID)
	require.Equal(t, "0xm", ev.Market)
	require.Len(t, ev.Bids, 2)
	require.True(t, ev.Bids[1].Price.Equal(decimal.RequireFromString("0.47")))
	require.Len(t, ev.Asks, 1)
}

func TestDecodeMarketMessage_ArrayOfEvents(t *testing.T) {
	raw := []byte(`[{"event_type":"book","asset_id":"A1","bids":[],"asks":[]},{"event_type":"last_trade_price","asset_id":"A2","price":"0.5"},"junk"]`)
	events, err := DecodeMarketMessage(raw)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, EventBook, events[0].Type)
	require.Equal(t, EventLastTradePrice, events[1].Type)
	require.Equal(t, "A2", events[1].AssetID)
}

func TestDecodeMarketMessage_PriceChangeForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []PriceChange
	}{
		{
			name: "legacy",
			raw:  `{"event_type":"price_change","asset_id":"A1","changes":[{"side":"BUY","price":"0.5","size":"0"},{"side":"sell","price":"0.6","size":"2"}]}`,
			want: []PriceChange{
				{AssetID: "A1", Side: "BUY", Price: decimal.RequireFromString("0.5"), Size: decimal.Zero},
				{AssetID: "A1", Side: "SELL", Price: decimal.RequireFromString("0.6"), Size: decimal.NewFromInt(2)},
			},
		},
		{
			name: "per entry asset",
			raw:  `{"event_type":"price_change","market":"0xm","price_changes":[{"asset_id":"A1","side":"BUY","price":"0.4","size":"7"},{"asset_id":"A2","side":"SELL","price":"0.61","size":"1"}]}`,
			want: []PriceChange{
				{AssetID: "A1", Side: "BUY", Price: decimal.RequireFromString("0.4"), Size: decimal.NewFromInt(7)},
				{AssetID: "A2", Side: "SELL", Price: decimal.RequireFromString("0.61"), Size: decimal.NewFromInt(1)},
			},
		},
		{
			name: "bad entries skipped",
			raw:  `{"event_type":"price_change","price_changes":[{"side":"BUY","price":"0.4","size":"7"},{"asset_id":"A1","side":"BUY","price":"x","size":"1"}]}`,
			want: []PriceChange{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := DecodeMarketMessage([]byte(tt.raw))
			require.NoError(t, err)
			require.Len(t, events, 1)
			got := events[0].Changes
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				require.Equal(t, tt.want[i].AssetID, got[i].AssetID)
				require.Equal(t, tt.want[i].Side, got[i].Side)
				require.True(t, tt.want[i].Price.Equal(got[i].Price))
				require.True(t, tt.want[i].Size.Equal(got[i].Size))
			}
		})
	}
}

func TestDecodeMarketMessage_NotJSON(t *testing.T) {
	_, err := DecodeMarketMessage([]byte("PONG"))
	require.ErrorIs(t, err, ErrNotJSON)

	_, err = DecodeMarketMessage([]byte(`{"event_type":`))
	require.Error(t, err)

	require.True(t, IsPong([]byte(" PONG\n")))
	require.False(t, IsPong([]byte(`{"event_type":"book"}`)))
}

func TestDecodeMarketMessage_BookWithoutAssetDropped(t *testing.T) {
	events, err := DecodeMarketMessage([]byte(`{"event_type":"book","bids":[]}`))
	require.NoError(t, err)
	require.Empty(t, events)
}
