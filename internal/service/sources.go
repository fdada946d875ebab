package service

import (
	"context"

	polymarketdata "polymirror/internal/client/polymarket/data"
)

// ActivitySource and PositionSource are the Data API calls the engine needs.
// *polymarketdata.Client satisfies both.
type ActivitySource interface {
	GetActivity(ctx context.Context, user string, params polymarketdata.ActivityParams) ([]polymarketdata.Activity, error)
}

type PositionSource interface {
	GetPositions(ctx context.Context, user string, params polymarketdata.PositionParams) ([]polymarketdata.Position, error)
}
