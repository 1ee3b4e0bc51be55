package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestRoundTripZeroSlippageNoCommission(t *testing.T) {
	p := New(types.PortfolioState{Cash: dec(10000)})

	if _, err := p.Execute("AAPL", types.OrderSideBuy, dec(100), dec(10), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := p.Execute("AAPL", types.OrderSideSell, dec(100), dec(10), decimal.Zero, decimal.Zero)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !res.RealizedPnL.IsZero() {
		t.Errorf("expected zero realized pnl, got %s", res.RealizedPnL)
	}
	if _, ok := p.state.Positions["AAPL"]; ok {
		t.Error("expected position removed after round trip")
	}
	if !p.Cash().Equal(dec(10000)) {
		t.Errorf("expected cash restored to 10000, got %s", p.Cash())
	}
}

func TestFlipShortToLong(t *testing.T) {
	p := New(types.PortfolioState{Cash: dec(10000)})

	// Open a short of 10 shares.
	if _, err := p.Execute("TSLA", types.OrderSideSell, dec(100), dec(10), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("short: %v", err)
	}
	// Buy 15 shares: covers the short (10) and opens a long of 5.
	if _, err := p.Execute("TSLA", types.OrderSideBuy, dec(100), dec(15), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("flip buy: %v", err)
	}
	pos := p.Position("TSLA")
	if pos == nil {
		t.Fatal("expected a resulting long position")
	}
	if !pos.Quantity.Equal(dec(5)) {
		t.Errorf("expected quantity 5, got %s", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec(100)) {
		t.Errorf("expected avg_price 100 (execution price), got %s", pos.AvgPrice)
	}
}

func TestEquityInvariantAfterExecute(t *testing.T) {
	p := New(types.PortfolioState{Cash: dec(50000)})
	if _, err := p.Execute("MSFT", types.OrderSideBuy, dec(300), dec(20), dec(5), dec(0.005)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	p.MarkToMarket(map[string]decimal.Decimal{"MSFT": dec(305)})

	expected := p.Cash()
	for _, pos := range p.state.Positions {
		expected = expected.Add(pos.Quantity.Mul(pos.CurrentPrice))
	}
	if !p.Equity().Equal(expected) {
		t.Errorf("equity invariant violated: equity=%s expected=%s", p.Equity(), expected)
	}
}

func TestWatermarksMonotone(t *testing.T) {
	p := New(types.PortfolioState{Cash: dec(10000)})
	if _, err := p.Execute("NVDA", types.OrderSideBuy, dec(50), dec(10), decimal.Zero, decimal.Zero); err != nil {
		t.Fatalf("buy: %v", err)
	}
	p.MarkToMarket(map[string]decimal.Decimal{"NVDA": dec(60)})
	p.MarkToMarket(map[string]decimal.Decimal{"NVDA": dec(45)})
	pos := p.Position("NVDA")
	if !pos.HighestPrice.Equal(dec(60)) {
		t.Errorf("expected highest 60, got %s", pos.HighestPrice)
	}
	if !pos.LowestPrice.Equal(dec(45)) {
		t.Errorf("expected lowest 45, got %s", pos.LowestPrice)
	}
}
