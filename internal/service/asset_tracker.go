package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"polymirror/internal/repository"
)

// AssetNotifier receives asset ids the tracker has not seen before.
type AssetNotifier interface {
	NotifyNewAssets(ids []string)
}

// AssetTracker is the set of every asset the engine has observed through
// trades or positions. It only grows.
type AssetTracker struct {
	mu       sync.Mutex
	known    map[string]struct{}
	notifier AssetNotifier
	logger   *zap.Logger
}

func NewAssetTracker(notifier AssetNotifier, logger *zap.Logger) *AssetTracker {
	return &AssetTracker{
		known:    map[string]struct{}{},
		notifier: notifier,
		logger:   logger,
	}
}

// SetNotifier wires the feed once it exists. The feed reads Snapshot on
// connect, so ids tracked before this call are not lost.
func (t *AssetTracker) SetNotifier(n AssetNotifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifier = n
}

// Track records ids and forwards the previously unknown ones to the
// notifier. Returns how many were new.
func (t *AssetTracker) Track(ids []string) int {
	t.mu.Lock()
	added := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := t.known[id]; ok {
			continue
		}
		t.known[id] = struct{}{}
		added = append(added, id)
	}
	notifier := t.notifier
	total := len(t.known)
	t.mu.Unlock()

	if len(added) == 0 {
		return 0
	}
	if t.logger != nil {
		t.logger.Debug("assets tracked", zap.Int("added", len(added)), zap.Int("total", total))
	}
	// Called outside the lock: the feed calls Snapshot while holding its own.
	if notifier != nil {
		notifier.NotifyNewAssets(added)
	}
	return len(added)
}

func (t *AssetTracker) Snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.known))
	for id := range t.known {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AssetIDs adapts Snapshot to the stream's provider signature.
func (t *AssetTracker) AssetIDs(context.Context) ([]string, error) {
	return t.Snapshot(), nil
}

func (t *AssetTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known)
}

// Seed loads the assets of stored positions so a restarted process keeps
// covering what the wallets already hold.
func (t *AssetTracker) Seed(ctx context.Context, repo repository.PositionRepository) (int, error) {
	if repo == nil {
		return 0, nil
	}
	assets, err := repo.ListPositionAssets(ctx)
	if err != nil {
		return 0, err
	}
	return t.Track(assets), nil
}
