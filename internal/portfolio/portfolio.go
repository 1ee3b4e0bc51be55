// Package portfolio is the simulated broker: cash/position bookkeeping,
// mark-to-market, and long/short execution with slippage and commission.
// Grounded on original_source/src/trading_floor/portfolio.py, which
// resolves spec §9 Open Question 1 (canonical execute semantics).
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Portfolio owns the current cash/positions/equity state for one
// Workflow invocation, persisted to portfolio.json on commit.
type Portfolio struct {
	state types.PortfolioState
}

// New constructs a Portfolio from a loaded or default snapshot.
func New(initial types.PortfolioState) *Portfolio {
	if initial.Positions == nil {
		initial.Positions = map[string]*types.Position{}
	}
	return &Portfolio{state: initial}
}

// State returns the current snapshot (positions map is shared, not
// copied — callers must not mutate it directly).
func (p *Portfolio) State() *types.PortfolioState { return &p.state }

// Position returns the open position for symbol, or nil.
func (p *Portfolio) Position(symbol string) *types.Position { return p.state.Positions[symbol] }

// Cash returns current cash.
func (p *Portfolio) Cash() decimal.Decimal { return p.state.Cash }

// Equity recomputes cash + sum(qty*current_price), the invariant spec
// §3/§8 requires hold after every execute().
func (p *Portfolio) Equity() decimal.Decimal {
	eq := p.state.Cash
	for _, pos := range p.state.Positions {
		eq = eq.Add(pos.Quantity.Mul(pos.CurrentPrice))
	}
	return eq
}

// MarkToMarket updates current_price and the highest/lowest watermarks
// for every held symbol present in prices. Grounded on portfolio.py's
// mark_to_market: watermarks are monotone while the position's sign is
// unchanged (spec §3 invariant).
func (p *Portfolio) MarkToMarket(prices map[string]decimal.Decimal) {
	for symbol, pos := range p.state.Positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		pos.CurrentPrice = price
		if price.GreaterThan(pos.HighestPrice) {
			pos.HighestPrice = price
		}
		if price.LessThan(pos.LowestPrice) {
			pos.LowestPrice = price
		}
	}
	p.state.Equity = p.Equity()
}

// ExecResult is the outcome of one execute() call.
type ExecResult struct {
	Symbol        string
	Side          types.OrderSide
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	RealizedPnL   decimal.Decimal
	Commission    decimal.Decimal
	PositionAfter *types.Position // nil if the position was closed
}

// fillPrice applies the slippage half of spec §9's canonical fill
// mechanics: slippage is multiplicative on price (buy up, sell down).
// Commission (per-share, paid out of cash on both sides) is charged by
// Execute.
func fillPrice(side types.OrderSide, price, slippageBps decimal.Decimal) decimal.Decimal {
	bps := slippageBps.Div(decimal.NewFromInt(10000))
	if side == types.OrderSideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(bps))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(bps))
}

// Execute fills a BUY or SELL of quantity (always positive) shares of
// symbol at the given reference price, applying slippage and commission.
// It implements the full long/short/flip semantics of
// original_source/portfolio.py's execute(): opening, adding to, reducing,
// closing, and flipping a position across zero.
func (p *Portfolio) Execute(symbol string, side types.OrderSide, price, quantity, slippageBps, commissionPerShare decimal.Decimal) (*ExecResult, error) {
	if !price.IsPositive() || !price.IsFinite() {
		return nil, fmt.Errorf("invalid price for %s: %s", symbol, price.String())
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("invalid quantity for %s: %s", symbol, quantity.String())
	}

	execPrice := fillPrice(side, price, slippageBps)
	commission := quantity.Mul(commissionPerShare)

	pos := p.state.Positions[symbol]
	signedDelta := quantity
	if side == types.OrderSideSell {
		signedDelta = quantity.Neg()
	}

	result := &ExecResult{Symbol: symbol, Side: side, Quantity: quantity, Price: execPrice, Commission: commission}

	switch {
	case pos == nil:
		// Fresh open.
		p.openFresh(symbol, execPrice, commission, signedDelta)
		result.PositionAfter = p.state.Positions[symbol]

	case pos.Quantity.Sign() == signedDelta.Sign() || pos.Quantity.IsZero():
		// Same-direction add (or degenerate zero position): grows the
		// position and blends cost basis, commission included in basis.
		p.addSameDirection(pos, execPrice, commission, signedDelta)
		result.PositionAfter = pos

	default:
		// Opposite-direction order: reduces, closes, or flips.
		pnl := p.reduceOrFlip(symbol, pos, execPrice, commission, signedDelta)
		result.RealizedPnL = pnl
		result.PositionAfter = p.state.Positions[symbol]
	}

	// Cash flow: buys consume cash (value + commission), sells release
	// cash net of commission.
	value := quantity.Mul(execPrice)
	if side == types.OrderSideBuy {
		p.state.Cash = p.state.Cash.Sub(value).Sub(commission)
	} else {
		p.state.Cash = p.state.Cash.Add(value).Sub(commission)
	}
	p.state.Equity = p.Equity()
	p.state.UpdatedAt = time.Now().UTC()
	return result, nil
}

func (p *Portfolio) openFresh(symbol string, execPrice, commission, signedDelta decimal.Decimal) {
	qty := signedDelta
	// Commission is baked into cost basis, matching original_source's
	// weighted-average-including-commission treatment of buys; for a
	// fresh short the analogous basis is execPrice with commission
	// amortized the same way so PnL on cover is symmetric.
	basis := execPrice.Add(commission.Div(qty.Abs()))
	if qty.IsNegative() {
		basis = execPrice.Sub(commission.Div(qty.Abs()))
	}
	p.state.Positions[symbol] = &types.Position{
		Symbol:       symbol,
		Quantity:     qty,
		AvgPrice:     basis,
		CurrentPrice: execPrice,
		HighestPrice: basis,
		LowestPrice:  basis,
		OpenedAt:     time.Now().UTC(),
	}
}

func (p *Portfolio) addSameDirection(pos *types.Position, execPrice, commission, signedDelta decimal.Decimal) {
	existingQty := pos.Quantity
	newQty := existingQty.Add(signedDelta)
	existingCost := pos.AvgPrice.Mul(existingQty.Abs())
	newCost := execPrice.Mul(signedDelta.Abs()).Add(commission)
	if newQty.IsZero() {
		pos.Quantity = newQty
		return
	}
	pos.AvgPrice = existingCost.Add(newCost).Div(newQty.Abs())
	pos.Quantity = newQty
	pos.CurrentPrice = execPrice
	if execPrice.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = execPrice
	}
	if execPrice.LessThan(pos.LowestPrice) {
		pos.LowestPrice = execPrice
	}
}

// reduceOrFlip handles an order whose side is opposite the held
// position's sign: it reduces, exactly closes, or flips the position,
// returning realized PnL on the portion that closed.
func (p *Portfolio) reduceOrFlip(symbol string, pos *types.Position, execPrice, commission, signedDelta decimal.Decimal) decimal.Decimal {
	existingQty := pos.Quantity
	closingQty := decimal.Min(existingQty.Abs(), signedDelta.Abs())

	// PnL sign: for a long being reduced/closed, pnl = (exit-entry)*qty;
	// for a short, pnl = (entry-exit)*qty. Both reduce to
	// (execPrice-avgPrice)*signedExistingQty on the closing quantity.
	direction := decimal.NewFromInt(1)
	if existingQty.IsNegative() {
		direction = decimal.NewFromInt(-1)
	}
	pnl := execPrice.Sub(pos.AvgPrice).Mul(closingQty).Mul(direction).Sub(commission)

	remainingExisting := existingQty.Abs().Sub(closingQty)
	remainingIncoming := signedDelta.Abs().Sub(closingQty)

	switch {
	case remainingExisting.IsZero() && remainingIncoming.IsZero():
		// Exact close.
		delete(p.state.Positions, symbol)
		return pnl

	case remainingIncoming.IsZero():
		// Partial reduce, same direction retained.
		newQty := existingQty.Add(signedDelta)
		pos.Quantity = newQty
		pos.CurrentPrice = execPrice
		return pnl

	default:
		// Flip: closes the existing side, opens the remainder fresh at
		// execPrice as the new avg_price (original_source/portfolio.py
		// semantics; this is spec §8's flip round-trip law).
		delete(p.state.Positions, symbol)
		newSign := decimal.NewFromInt(1)
		if existingQty.IsPositive() {
			newSign = decimal.NewFromInt(-1) // incoming order was a SELL larger than the long
		}
		newQty := remainingIncoming.Mul(newSign)
		p.state.Positions[symbol] = &types.Position{
			Symbol:       symbol,
			Quantity:     newQty,
			AvgPrice:     execPrice,
			CurrentPrice: execPrice,
			HighestPrice: execPrice,
			LowestPrice:  execPrice,
			OpenedAt:     time.Now().UTC(),
		}
		return pnl
	}
}
