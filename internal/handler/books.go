package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"polymirror/internal/orderbook"
	"polymirror/internal/service"
)

const defaultBookMaxAge = 5 * time.Second

// FeedStatus is implemented by *service.MarketFeedService.
type FeedStatus interface {
	Stats() service.FeedStats
}

type BookHandler struct {
	Cache         *orderbook.Cache
	Feed          FeedStatus
	DefaultMaxAge time.Duration
	Now           func() time.Time
}

type bookResponse struct {
	orderbook.Snapshot
	BestBid *orderbook.Level `json:"best_bid,omitempty"`
	BestAsk *orderbook.Level `json:"best_ask,omitempty"`
	AgeMs   int64            `json:"age_ms"`
}

func (h *BookHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/books/:asset_id", h.get)
	r.GET("/api/v1/feed/status", h.status)
}

// @Summary Cached order book of an asset
// @Description Returns 404 when the book was not updated within max_age_ms.
// @Tags books
// @Security BearerAuth
// @Param asset_id path string true "asset (token) id"
// @Param max_age_ms query int false "freshness bound in milliseconds"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/books/{asset_id} [get]
func (h *BookHandler) get(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	assetID := strings.TrimSpace(c.Param("asset_id"))
	maxAge := h.DefaultMaxAge
	if maxAge <= 0 {
		maxAge = defaultBookMaxAge
	}
	if ms := intQuery(c, "max_age_ms", 0); ms > 0 {
		maxAge = time.Duration(ms) * time.Millisecond
	}
	snap, ok := h.Cache.Read(assetID, maxAge)
	if !ok {
		Error(c, http.StatusNotFound, "no fresh data", map[string]any{"asset_id": assetID, "max_age_ms": maxAge.Milliseconds()})
		return
	}
	out := bookResponse{Snapshot: snap, AgeMs: h.now().Sub(snap.UpdatedAt).Milliseconds()}
	if lvl, ok := snap.BestBid(); ok {
		out.BestBid = &lvl
	}
	if lvl, ok := snap.BestAsk(); ok {
		out.BestAsk = &lvl
	}
	Ok(c, out, nil)
}

// @Summary Market feed connection and cache status
// @Tags books
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/feed/status [get]
func (h *BookHandler) status(c *gin.Context) {
	if h.Feed == nil {
		Error(c, http.StatusInternalServerError, "feed unavailable", nil)
		return
	}
	Ok(c, h.Feed.Stats(), nil)
}

func (h *BookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
