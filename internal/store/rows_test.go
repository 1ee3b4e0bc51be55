package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TodaysTradesForSymbol and RecentTradesForSymbol must exclude entry
// rows (pnl=0, logged at open) and return only closed trades, matching
// challenger.py's `AND pnl != 0` queries.
func TestTodaysTradesForSymbolExcludesEntryRows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if _, err := st.InsertTrade(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero, decimal.NewFromFloat(0.4), nil); err != nil {
		t.Fatalf("seed entry trade: %v", err)
	}
	if _, err := st.InsertTrade(ctx, "AAPL", types.OrderSideSell, decimal.NewFromInt(10), decimal.NewFromInt(95), decimal.NewFromInt(-50), decimal.NewFromFloat(0.4), nil); err != nil {
		t.Fatalf("seed closed trade: %v", err)
	}

	trades, err := st.TodaysTradesForSymbol(ctx, "AAPL", time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("todays trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected only the closed trade, got %d rows", len(trades))
	}
	if !trades[0].PnL.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("expected the closed trade's pnl -50, got %s", trades[0].PnL)
	}
}

func TestRecentTradesForSymbolExcludesEntryRows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if _, err := st.InsertTrade(ctx, "AAPL", types.OrderSideBuy, decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.Zero, decimal.NewFromFloat(0.4), nil); err != nil {
		t.Fatalf("seed entry trade: %v", err)
	}
	for _, pnl := range []float64{-12, -7} {
		if _, err := st.InsertTrade(ctx, "AAPL", types.OrderSideSell, decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromFloat(pnl), decimal.NewFromFloat(0.4), nil); err != nil {
			t.Fatalf("seed closed trade: %v", err)
		}
	}

	trades, err := st.RecentTradesForSymbol(ctx, "AAPL", 5)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected only the 2 closed trades (entry row excluded), got %d", len(trades))
	}
}
