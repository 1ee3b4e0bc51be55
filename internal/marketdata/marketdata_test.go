package marketdata

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

type countingSource struct {
	calls int32
}

func (c *countingSource) Fetch(ctx context.Context, symbols []string, interval string, lookback int) (map[string][]types.Bar, error) {
	atomic.AddInt32(&c.calls, 1)
	return map[string][]types.Bar{symbols[0]: {{Symbol: symbols[0]}}}, nil
}

func TestFetchCachesWithinTTL(t *testing.T) {
	src := &countingSource{}
	svc := New(src, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Fetch(ctx, []string{"AAPL"}, "5m", 120); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := svc.Fetch(ctx, []string{"AAPL"}, "5m", 120); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if atomic.LoadInt32(&src.calls) != 1 {
		t.Errorf("expected one underlying fetch within TTL, got %d", src.calls)
	}
}

func TestFetchKeyIsOrderIndependent(t *testing.T) {
	src := &countingSource{}
	svc := New(src, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Fetch(ctx, []string{"AAPL", "MSFT"}, "5m", 120); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := svc.Fetch(ctx, []string{"MSFT", "AAPL"}, "5m", 120); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if atomic.LoadInt32(&src.calls) != 1 {
		t.Errorf("expected same cache key regardless of symbol order, got %d calls", src.calls)
	}
}
