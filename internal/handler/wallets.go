package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"polymirror/internal/repository"
	"polymirror/internal/service"
)

type WalletHandler struct {
	Repo     repository.Repository
	Reporter *service.PortfolioReporter
	Wallets  []string
	Logger   *zap.Logger
}

type markProcessedRequest struct {
	Attempts int `json:"attempts"`
}

func (h *WalletHandler) Register(r *gin.Engine) {
	w := r.Group("/api/v1/wallets")
	w.GET("", h.list)
	w.GET("/:address/activities", h.activities)
	w.GET("/:address/positions", h.positions)

	r.POST("/api/v1/activities/:id/processed", h.markProcessed)
}

// @Summary List watched wallets with portfolio summaries
// @Tags wallets
// @Security BearerAuth
// @Success 200 {object} apiResponse
// @Router /api/v1/wallets [get]
func (h *WalletHandler) list(c *gin.Context) {
	if h.Reporter == nil {
		Error(c, http.StatusInternalServerError, "reporter unavailable", nil)
		return
	}
	items, err := h.Reporter.Summaries(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary List trades of a watched wallet
// @Tags wallets
// @Security BearerAuth
// @Param address path string true "wallet address"
// @Param processed query bool false "filter by processed flag"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/wallets/{address}/activities [get]
func (h *WalletHandler) activities(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	wallet, ok := h.watched(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListActivities(c.Request.Context(), repository.ListActivitiesParams{
		Wallet:    wallet,
		Processed: boolQueryPtr(c, "processed"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

// @Summary Latest position snapshot of a watched wallet
// @Tags wallets
// @Security BearerAuth
// @Param address path string true "wallet address"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/wallets/{address}/positions [get]
func (h *WalletHandler) positions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	wallet, ok := h.watched(c)
	if !ok {
		return
	}
	items, err := h.Repo.ListPositions(c.Request.Context(), wallet)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Mark a trade as handled by the downstream strategy
// @Tags activities
// @Security BearerAuth
// @Param id path int true "activity id"
// @Param body body markProcessedRequest false "execution attempts"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/activities/{id}/processed [post]
func (h *WalletHandler) markProcessed(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := uint64Param(c, "id")
	if id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req markProcessedRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	if req.Attempts < 0 {
		Error(c, http.StatusBadRequest, "attempts must be >= 0", nil)
		return
	}
	ctx := c.Request.Context()
	if err := h.Repo.MarkActivityProcessed(ctx, id, req.Attempts); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Error(c, http.StatusNotFound, "activity not found", nil)
			return
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	item, err := h.Repo.GetActivityByID(ctx, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("activity marked processed", zap.Uint64("id", id), zap.Int("attempts", req.Attempts))
	}
	Ok(c, item, nil)
}

func (h *WalletHandler) watched(c *gin.Context) (string, bool) {
	wallet := strings.ToLower(strings.TrimSpace(c.Param("address")))
	for _, w := range h.Wallets {
		if w == wallet {
			return wallet, true
		}
	}
	Error(c, http.StatusNotFound, "wallet not watched", nil)
	return "", false
}
