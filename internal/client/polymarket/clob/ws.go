package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultMarketWSSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

const (
	defaultReadLimit = 2 << 20
	writeTimeout     = 5 * time.Second
	pingPayload      = "PING"
)

type MarketSubscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

type AssetIDProvider func(context.Context) ([]string, error)

type WSClient struct {
	url       string
	readLimit int64
	conn      *websocket.Conn
}

func NewWSClient(url string, readLimit int64) *WSClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultMarketWSSURL
	}
	if readLimit <= 0 {
		readLimit = defaultReadLimit
	}
	return &WSClient{url: url, readLimit: readLimit}
}

func (c *WSClient) Connect(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("ws client is nil")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	// Full book snapshots exceed the library's 32KB default.
	conn.SetReadLimit(c.readLimit)
	c.conn = conn
	return nil
}

func (c *WSClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *WSClient) SubscribeMarket(ctx context.Context, assetIDs []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	payload, err := json.Marshal(MarketSubscribeRequest{
		Type:      "market",
		AssetsIDs: assetIDs,
	})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Ping sends the application level heartbeat. The server answers with a
// literal PONG frame.
func (c *WSClient) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.conn.Write(ctx, websocket.MessageText, []byte(pingPayload))
}

func (c *WSClient) Read(ctx context.Context) ([]byte, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("ws not connected")
	}
	_, data, err := c.conn.Read(ctx)
	return data, err
}

type MarketStreamOptions struct {
	URL               string
	AssetIDProvider   AssetIDProvider
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	ReadLimit         int64
	// OnConnect runs after every successful dial, before the subscribe
	// message goes out.
	OnConnect func()
	Logger    *zap.Logger
}

type StreamStatus struct {
	Connected  bool  `json:"connected"`
	Subscribed int   `json:"subscribed"`
	Connects   int64 `json:"connects"`
}

// MarketStream keeps one market channel connection alive and grows its
// subscription as new assets are reported.
type MarketStream struct {
	opts MarketStreamOptions

	mu         sync.Mutex
	client     *WSClient
	connCtx    context.Context
	cancelConn context.CancelFunc
	subscribed map[string]struct{}
	stopped    bool

	stopOnce sync.Once
	stopCh   chan struct{}
	connects atomic.Int64
}

func NewMarketStream(opts MarketStreamOptions) *MarketStream {
	if opts.URL == "" {
		opts.URL = DefaultMarketWSSURL
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	return &MarketStream{
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

// Run connects and reads until ctx is done or Stop is called. Every dropped
// connection is retried after ReconnectDelay. Returns nil after Stop.
func (s *MarketStream) Run(ctx context.Context, onMessage func([]byte)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	for {
		if s.isStopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.session(ctx, onMessage)
		if s.isStopped() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Warn("clob ws disconnected", zap.Error(err), zap.Duration("retry_in", s.opts.ReconnectDelay))
		}
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *MarketStream) session(ctx context.Context, onMessage func([]byte)) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := NewWSClient(s.opts.URL, s.opts.ReadLimit)
	if err := client.Connect(connCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	n, err := s.attach(connCtx, cancel, client)
	if err != nil {
		_ = client.Close(websocket.StatusInternalError, "subscribe failed")
		s.detach()
		return fmt.Errorf("subscribe: %w", err)
	}
	if s.opts.Logger != nil {
		s.opts.Logger.Info("clob ws connected", zap.Int("assets", n), zap.Int64("connects", s.connects.Load()))
	}

	go s.heartbeat(connCtx, cancel, client)

	err = s.consume(connCtx, client, onMessage)
	s.detach()
	_ = client.Close(websocket.StatusNormalClosure, "reconnect")
	return err
}

// attach publishes the fresh connection and sends the full known asset set
// while holding the lock, so a concurrent NotifyNewAssets either lands in
// the snapshot or sends only what is missing.
func (s *MarketStream) attach(connCtx context.Context, cancel context.CancelFunc, client *WSClient) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, errors.New("stream stopped")
	}
	s.connects.Add(1)
	s.client = client
	s.connCtx = connCtx
	s.cancelConn = cancel
	s.subscribed = map[string]struct{}{}

	if s.opts.OnConnect != nil {
		s.opts.OnConnect()
	}

	var ids []string
	if s.opts.AssetIDProvider != nil {
		got, err := s.opts.AssetIDProvider(connCtx)
		if err != nil {
			return 0, err
		}
		ids = uniqueIDs(got)
	}
	// An empty subscription is not sent; the first NotifyNewAssets carries it.
	if len(ids) == 0 {
		if s.opts.Logger != nil {
			s.opts.Logger.Info("clob ws subscribe deferred: no assets yet")
		}
		return 0, nil
	}
	writeCtx, cancelWrite := context.WithTimeout(connCtx, writeTimeout)
	defer cancelWrite()
	if err := client.SubscribeMarket(writeCtx, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.subscribed[id] = struct{}{}
	}
	return len(ids), nil
}

func (s *MarketStream) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.connCtx = nil
	s.cancelConn = nil
	s.subscribed = nil
}

func (s *MarketStream) heartbeat(ctx context.Context, cancel context.CancelFunc, client *WSClient) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, writeTimeout)
			err := client.Ping(pingCtx)
			cancelPing()
			if err != nil {
				if s.opts.Logger != nil && ctx.Err() == nil {
					s.opts.Logger.Warn("clob ws ping failed", zap.Error(err))
				}
				cancel()
				return
			}
		}
	}
}

func (s *MarketStream) consume(ctx context.Context, client *WSClient, onMessage func([]byte)) error {
	for {
		raw, err := client.Read(ctx)
		if err != nil {
			return err
		}
		if IsPong(raw) {
			continue
		}
		if onMessage != nil {
			onMessage(raw)
		}
	}
}

// NotifyNewAssets subscribes the open connection to ids it does not carry
// yet. Without a connection the ids are absorbed: the next connect reads the
// full set from the provider.
func (s *MarketStream) NotifyNewAssets(ids []string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.client == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	delta := make([]string, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		if _, ok := s.subscribed[id]; !ok {
			delta = append(delta, id)
		}
	}
	if len(delta) == 0 {
		s.mu.Unlock()
		return
	}
	// Reserve the ids so concurrent callers do not send them twice. The
	// write happens outside the lock.
	for _, id := range delta {
		s.subscribed[id] = struct{}{}
	}
	client, connCtx, cancelConn := s.client, s.connCtx, s.cancelConn
	s.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(connCtx, writeTimeout)
	err := client.SubscribeMarket(writeCtx, delta)
	cancel()

	s.mu.Lock()
	current := s.client == client
	if err != nil && current {
		for _, id := range delta {
			delete(s.subscribed, id)
		}
	}
	total := len(s.subscribed)
	s.mu.Unlock()

	if err != nil {
		if s.opts.Logger != nil && current {
			s.opts.Logger.Warn("clob ws subscribe delta failed", zap.Int("assets", len(delta)), zap.Error(err))
		}
		// The connection is unusable; the reconnect will resend everything.
		cancelConn()
		return
	}
	if s.opts.Logger != nil {
		s.opts.Logger.Info("clob ws subscribed delta", zap.Int("assets", len(delta)), zap.Int("total", total))
	}
}

// Stop closes the connection and suppresses any further reconnect.
func (s *MarketStream) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		client := s.client
		cancel := s.cancelConn
		s.mu.Unlock()
		close(s.stopCh)

		if client != nil {
			_ = client.Close(websocket.StatusNormalClosure, "stopped")
		}
		if cancel != nil {
			cancel()
		}
	})
}

func (s *MarketStream) Status() StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStatus{
		Connected:  s.client != nil,
		Subscribed: len(s.subscribed),
		Connects:   s.connects.Load(),
	}
}

func (s *MarketStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *MarketStream) wait(ctx context.Context) error {
	timer := time.NewTimer(s.opts.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return nil
	case <-timer.C:
		return nil
	}
}

func uniqueIDs(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
