// Package marketdata implements spec §4.1: a TTL-cached, dedup-on-fetch
// bar provider over an injected source. Grounded on the teacher's
// internal/data/market_data.go cache-struct shape (map caches behind
// sync.RWMutex), with the live-fetch side replaced by a BarSource
// interface since the provider itself is out of scope.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

const cacheTTL = 60 * time.Second

// BarSource fetches bars for a set of symbols from an external
// provider. Implementations are out of scope per spec §1.
type BarSource interface {
	Fetch(ctx context.Context, symbols []string, interval string, lookback int) (map[string][]types.Bar, error)
}

type cacheEntry struct {
	bars     map[string][]types.Bar
	fetchedAt time.Time
}

// Service caches BarSource reads behind a TTL and collapses concurrent
// identical-key fetches, matching the teacher's priceCache/ohlcvCache
// idiom generalized from a push-feed to a pull-cache.
type Service struct {
	source BarSource
	logger *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New builds a Service wrapping source.
func New(source BarSource, logger *zap.Logger) *Service {
	return &Service{
		source: source,
		logger: logger.Named("marketdata"),
		cache:  make(map[string]cacheEntry),
	}
}

// Fetch returns cached bars if fresh, else fetches once per key even
// under concurrent callers (singleflight), storing the result under a
// 60s TTL.
func (s *Service) Fetch(ctx context.Context, symbols []string, interval string, lookback int) (map[string][]types.Bar, error) {
	key := cacheKey(symbols, interval, lookback)

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.bars, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		bars, err := s.source.Fetch(ctx, symbols, interval, lookback)
		if err != nil {
			return nil, fmt.Errorf("fetch bars: %w", err)
		}
		s.mu.Lock()
		s.cache[key] = cacheEntry{bars: bars, fetchedAt: time.Now()}
		s.mu.Unlock()
		return bars, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string][]types.Bar), nil
}

func cacheKey(symbols []string, interval string, lookback int) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return strings.Join(sorted, ",") + "|" + interval + "|" + strconv.Itoa(lookback)
}

// FilterTradingWindow converts bar timestamps into loc and keeps only
// those falling in [start, end] inclusive.
func FilterTradingWindow(bars []types.Bar, loc *time.Location, start, end time.Time) []types.Bar {
	out := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		t := b.Timestamp.In(loc)
		if t.Before(start) || t.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
