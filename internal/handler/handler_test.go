package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"polymirror/internal/auth"
	"polymirror/internal/models"
	"polymirror/internal/orderbook"
	"polymirror/internal/repository"
	"polymirror/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memRepo is a test-only in-memory implementation of repository.Repository.
type memRepo struct {
	activities []models.TradeActivity
	positions  []models.WalletPosition
}

func (m *memRepo) FindActivityByTxHash(ctx context.Context, wallet, txHash string) (*models.TradeActivity, error) {
	return nil, nil
}
func (m *memRepo) InsertActivity(ctx context.Context, item *models.TradeActivity) (bool, error) {
	item.ID = uint64(len(m.activities) + 1)
	m.activities = append(m.activities, *item)
	return true, nil
}
func (m *memRepo) MarkAllActivitiesProcessed(ctx context.Context) (int64, error) { return 0, nil }
func (m *memRepo) MarkActivityProcessed(ctx context.Context, id uint64, attempts int) error {
	for i := range m.activities {
		if m.activities[i].ID == id {
			m.activities[i].Processed = true
			m.activities[i].ExecutionAttempts = attempts
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
func (m *memRepo) GetActivityByID(ctx context.Context, id uint64) (*models.TradeActivity, error) {
	for i := range m.activities {
		if m.activities[i].ID == id {
			item := m.activities[i]
			return &item, nil
		}
	}
	return nil, nil
}
func (m *memRepo) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]models.TradeActivity, error) {
	out := []models.TradeActivity{}
	for _, a := range m.activities {
		if a.Wallet != params.Wallet {
			continue
		}
		if params.Processed != nil && a.Processed != *params.Processed {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (m *memRepo) CountUnprocessedActivities(ctx context.Context, wallet string) (int64, error) {
	return 0, nil
}
func (m *memRepo) UpsertPosition(ctx context.Context, item *models.WalletPosition) error {
	m.positions = append(m.positions, *item)
	return nil
}
func (m *memRepo) ListPositions(ctx context.Context, wallet string) ([]models.WalletPosition, error) {
	out := []models.WalletPosition{}
	for _, p := range m.positions {
		if p.Wallet == wallet {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memRepo) ListPositionAssets(ctx context.Context) ([]string, error) { return nil, nil }
func (m *memRepo) PositionsSummary(ctx context.Context, wallet string) (repository.PositionsSummary, error) {
	return repository.PositionsSummary{Wallet: wallet, OpenPositions: int64(len(m.positions))}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeFeed struct{ stats service.FeedStats }

func (f fakeFeed) Stats() service.FeedStats { return f.stats }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func do(t *testing.T, r http.Handler, method, path string, body []byte, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	(&HealthHandler{}).Register(r)
	w, _ := do(t, r, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	r = gin.New()
	(&HealthHandler{DB: fakePinger{}}).Register(r)
	w, _ = do(t, r, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	r = gin.New()
	(&HealthHandler{DB: fakePinger{err: errors.New("down")}}).Register(r)
	w, _ = do(t, r, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBookHandler_FreshAndStale(t *testing.T) {
	now := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
	cache := orderbook.NewCache()
	cache.SetClock(func() time.Time { return now })
	cache.ReplaceBook("A1", "0xm",
		[]orderbook.Level{{Price: decimal.RequireFromString("0.48"), Size: decimal.NewFromInt(10)}},
		[]orderbook.Level{{Price: decimal.RequireFromString("0.52"), Size: decimal.NewFromInt(4)}},
	)
	r := gin.New()
	(&BookHandler{Cache: cache, Now: func() time.Time { return now.Add(time.Second) }}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/v1/books/A1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var book struct {
		AssetID string          `json:"asset_id"`
		BestBid orderbook.Level `json:"best_bid"`
		AgeMs   int64           `json:"age_ms"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &book))
	require.Equal(t, "A1", book.AssetID)
	require.True(t, book.BestBid.Price.Equal(decimal.RequireFromString("0.48")))
	require.Equal(t, int64(1000), book.AgeMs)

	now = now.Add(10 * time.Second)
	w, env = do(t, r, http.MethodGet, "/api/v1/books/A1", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "no fresh data", env.Message)

	w, _ = do(t, r, http.MethodGet, "/api/v1/books/A1?max_age_ms=60000", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/books/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookHandler_FeedStatus(t *testing.T) {
	r := gin.New()
	(&BookHandler{Cache: orderbook.NewCache(), Feed: fakeFeed{stats: service.FeedStats{Connected: true, TrackedAssets: 3}}}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/v1/feed/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st service.FeedStats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.True(t, st.Connected)
	require.Equal(t, 3, st.TrackedAssets)
}

func newWalletRouter(repo *memRepo) *gin.Engine {
	wallets := []string{"0xa"}
	r := gin.New()
	(&WalletHandler{
		Repo:     repo,
		Reporter: &service.PortfolioReporter{Repo: repo, Wallets: wallets},
		Wallets:  wallets,
	}).Register(r)
	return r
}

func TestWalletHandler_ListAndFilters(t *testing.T) {
	repo := &memRepo{}
	ctx := context.Background()
	_, _ = repo.InsertActivity(ctx, &models.TradeActivity{Wallet: "0xa", TransactionHash: "tx1", Processed: true})
	_, _ = repo.InsertActivity(ctx, &models.TradeActivity{Wallet: "0xa", TransactionHash: "tx2"})
	_ = repo.UpsertPosition(ctx, &models.WalletPosition{Wallet: "0xa", Asset: "t1"})
	r := newWalletRouter(repo)

	w, env := do(t, r, http.MethodGet, "/api/v1/wallets", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), `"wallet":"0xa"`)

	w, env = do(t, r, http.MethodGet, "/api/v1/wallets/0xA/activities?processed=false", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.TradeActivity
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, "tx2", items[0].TransactionHash)

	w, env = do(t, r, http.MethodGet, "/api/v1/wallets/0xa/positions", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), env.Meta["count"])

	w, env = do(t, r, http.MethodGet, "/api/v1/wallets/0xzzz/positions", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "wallet not watched", env.Message)
}

func TestWalletHandler_MarkProcessed(t *testing.T) {
	repo := &memRepo{}
	_, _ = repo.InsertActivity(context.Background(), &models.TradeActivity{Wallet: "0xa", TransactionHash: "tx1"})
	r := newWalletRouter(repo)

	w, env := do(t, r, http.MethodPost, "/api/v1/activities/1/processed", []byte(`{"attempts":2}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var item models.TradeActivity
	require.NoError(t, json.Unmarshal(env.Data, &item))
	require.True(t, item.Processed)
	require.Equal(t, 2, item.ExecutionAttempts)

	w, _ = do(t, r, http.MethodPost, "/api/v1/activities/99/processed", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/activities/abc/processed", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/activities/1/processed", []byte(`{"attempts":-1}`), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireBearerMiddleware(t *testing.T) {
	verifier := &auth.JWT{Secret: []byte("k")}
	r := gin.New()
	r.Use(RequestIDMiddleware(), RequireBearerMiddleware(verifier))
	(&HealthHandler{DB: fakePinger{}}).Register(r)
	(&BookHandler{Feed: fakeFeed{}}).Register(r)

	w, _ := do(t, r, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, env := do(t, r, http.MethodGet, "/api/v1/feed/status", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "missing bearer token", env.Message)

	w, _ = do(t, r, http.MethodGet, "/api/v1/feed/status", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := verifier.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "strategy"}})
	require.NoError(t, err)
	w, _ = do(t, r, http.MethodGet, "/api/v1/feed/status", nil, map[string]string{
		"Authorization": "Bearer " + token,
		"X-Request-ID":  "req-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}

func TestResponseMetaCarriesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	(&BookHandler{Cache: orderbook.NewCache(), Feed: fakeFeed{}}).Register(r)

	w, env := do(t, r, http.MethodGet, "/api/v1/feed/status", nil, map[string]string{"X-Request-ID": "req-ok"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-ok", env.Meta["request_id"])

	w, env = do(t, r, http.MethodGet, "/api/v1/books/missing", nil, map[string]string{"X-Request-ID": "req-miss"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "req-miss", env.Meta["request_id"])
}

func TestRequireBearerMiddleware_DisabledWithoutSecret(t *testing.T) {
	r := gin.New()
	r.Use(RequireBearerMiddleware(nil))
	(&BookHandler{Feed: fakeFeed{}}).Register(r)

	w, _ := do(t, r, http.MethodGet, "/api/v1/feed/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, strings.Contains(w.Body.String(), "bearer"))
}
