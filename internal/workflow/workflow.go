// Package workflow implements the per-invocation orchestrator (spec
// §4.15): the 13-step decision cycle from trading-hours gate through
// portfolio snapshot persistence. Grounded on the teacher's
// internal/orchestrator/orchestrator.go for the "own one instance of
// every component, wire it together, run to completion" shape,
// collapsed from a continuous event-driven loop into one Run call per
// process invocation.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-engine/internal/approval"
	"github.com/atlas-desktop/trading-engine/internal/challenger"
	"github.com/atlas-desktop/trading-engine/internal/compliance"
	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/engineerr"
	"github.com/atlas-desktop/trading-engine/internal/exits"
	"github.com/atlas-desktop/trading-engine/internal/finance"
	"github.com/atlas-desktop/trading-engine/internal/marketdata"
	"github.com/atlas-desktop/trading-engine/internal/memory"
	"github.com/atlas-desktop/trading-engine/internal/pm"
	"github.com/atlas-desktop/trading-engine/internal/portfolio"
	"github.com/atlas-desktop/trading-engine/internal/preexec"
	"github.com/atlas-desktop/trading-engine/internal/regime"
	"github.com/atlas-desktop/trading-engine/internal/risk"
	"github.com/atlas-desktop/trading-engine/internal/scout"
	"github.com/atlas-desktop/trading-engine/internal/signals"
	"github.com/atlas-desktop/trading-engine/internal/store"
	"github.com/atlas-desktop/trading-engine/internal/workers"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

// Dependencies bundles the one-instance-per-invocation components
// Workflow owns, per spec §3's ownership model.
type Dependencies struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      *store.Store
	MarketData *marketdata.Service
	Portfolio  *portfolio.Portfolio
	Memory     *memory.AgentMemory
	Shadow     *regime.Runner

	News           signals.NewsProvider
	StructuredNews signals.StructuredNewsProvider
	Sector         risk.SectorSentimentProvider
	Normalizer     *signals.Normalizer
}

// InvocationReport summarizes one Run, replacing the teacher's
// continuous metrics stream with a single end-of-cycle document.
type InvocationReport struct {
	Timestamp       time.Time
	TradingHours    bool
	SkipReason      string
	RegimeLabel     string
	CandidatesTotal int
	PlansExecuted   int
	ForcedExits     int
	Rewards         []Reward
}

// Reward is one per-trade annotation emitted at the end of a cycle
// (spec §4.15 step 13), joining the execution outcome with the signal
// that produced it for later agent-memory training.
type Reward struct {
	Symbol           string
	Side             types.OrderSide
	PnL              decimal.Decimal
	Score            decimal.Decimal
	MemoryInfluenced bool
}

type scoredSymbol struct {
	symbol     string
	components types.SignalComponents
	weights    types.SignalWeights
	composite  decimal.Decimal
	vol        decimal.Decimal
	returns    []float64
}

// Run executes one full invocation and returns its report. A non-nil
// error means the run could not proceed at all (e.g. ConfigError); gate
// denials and data gaps are handled internally and never escape as
// errors, per spec §7.
func Run(ctx context.Context, deps Dependencies) (*InvocationReport, error) {
	now := time.Now().UTC()
	report := &InvocationReport{Timestamp: now}

	// Step 1: trading-hours gate.
	loc, err := time.LoadLocation(deps.Config.Hours.TZ)
	if err != nil {
		return nil, &engineerr.ConfigError{Op: "workflow.Run", Err: fmt.Errorf("load tz: %w", err)}
	}
	ok, reason := withinTradingHours(now.In(loc), deps.Config.Hours)
	report.TradingHours = ok
	if !ok {
		report.SkipReason = reason
		return report, nil
	}

	// Step 2: fetch bars for universe ∪ {SPY, VIX, BTC}.
	universe := append(append([]string{}, deps.Config.Universe...), "SPY", "VIX", "BTC-USD")
	bars, err := deps.MarketData.Fetch(ctx, universe, deps.Config.Data.Interval, deps.Config.Data.Lookback)
	if err != nil {
		deps.Logger.Warn("market data fetch failed, treating as data gap", zap.Error(err))
		bars = map[string][]types.Bar{}
	}

	// Step 3: simple regime.
	label, isDowntrend, isFear := regime.SimpleRegime(bars["SPY"], bars["VIX"])
	report.RegimeLabel = label

	// Step 4: mark-to-market.
	prices := make(map[string]decimal.Decimal, len(bars))
	for symbol, series := range bars {
		if len(series) == 0 {
			continue
		}
		prices[symbol] = series[len(series)-1].Close
	}
	deps.Portfolio.MarkToMarket(prices)

	// Step 5: forced exits.
	atrPct := make(map[string]decimal.Decimal, len(bars))
	for symbol, series := range bars {
		atrPct[symbol] = risk.ATRPercent(series, deps.Config.Risk.ATRPeriod)
	}
	forced := exits.CheckExits(deps.Portfolio.State().Positions, atrPct, deps.Portfolio.Equity(), deps.Config.Risk)
	report.ForcedExits = len(forced)

	// Step 6: scout-rank, select top-N, score signals in parallel.
	tradeable := make(map[string][]types.Bar, len(deps.Config.Universe))
	for _, symbol := range deps.Config.Universe {
		if series, ok := bars[symbol]; ok {
			tradeable[symbol] = series
		}
	}
	ranked := scout.TopN(scout.Rank(tradeable), deps.Config.ScoutTopN)

	scored := scoreInParallel(ctx, deps, ranked, tradeable)
	report.CandidatesTotal = len(scored)

	// Step 7: log every computed signal.
	for _, s := range scored {
		if _, err := deps.Store.InsertSignal(ctx, s.symbol, s.components, s.weights, s.composite); err != nil {
			deps.Logger.Warn("signal log failed", zap.String("symbol", s.symbol), zap.Error(err))
		}
	}

	// Step 8: persistence gate.
	if deps.Config.Signals.PersistenceGateEnabled {
		scored = applyPersistenceGate(ctx, deps, scored, now)
	}

	// Step 9: Shadow (Kalman + HMM).
	benchmarkReturns := pctChangeReturns(bars["SPY"])
	deps.Shadow.RefitHMM(benchmarkReturns)
	existingSignals := make(map[string]decimal.Decimal, len(scored))
	for _, s := range scored {
		existingSignals[s.symbol] = s.composite
	}
	shadowRecords := deps.Shadow.Run(ctx, deps.Store, prices, existingSignals, benchmarkReturns, label)
	livePred := deps.Shadow.LivePredict(benchmarkReturns)

	// Step 10: PM produces plan; merge forced exits first; apply
	// max-position cap on new entries.
	candidates := make([]pm.Candidate, 0, len(scored))
	for _, s := range scored {
		side := types.OrderSideBuy
		if s.composite.IsNegative() {
			side = types.OrderSideSell
		}
		candidates = append(candidates, pm.Candidate{
			Symbol: s.symbol, Score: s.composite, Side: side,
			Components: s.components, Weights: s.weights, Vol: s.vol, Returns: s.returns,
		})
	}
	newPlans := pm.CreatePlan(ctx, pm.Input{
		Candidates: candidates, IsDowntrend: isDowntrend, IsFear: isFear,
		Positions: deps.Portfolio.State().Positions, Equity: deps.Portfolio.Equity(), Cash: deps.Portfolio.Cash(),
		SignalsCfg: deps.Config.Signals, RiskCfg: deps.Config.Risk,
		MemoryAgentName: "pm", Memory: deps.Memory, RegimeLabel: label,
	})
	currentPositions := countOpenPositions(deps.Portfolio.State().Positions)
	newPlans = exits.CheckMaxPositions(newPlans, currentPositions-len(forced), deps.Config.Risk.MaxPositions)

	plans := make([]types.Plan, 0, len(forced)+len(newPlans))
	for _, f := range forced {
		plans = append(plans, types.Plan{Symbol: f.Symbol, Side: f.Side, Kind: types.PlanKindExit, ExitReason: f.Reason})
	}
	plans = append(plans, newPlans...)

	// Step 11: Risk -> Compliance -> Approval.
	gated := make([]types.Plan, 0, len(plans))
	exitingSymbols := len(forced)
	newEntries := len(newPlans)
	for _, p := range plans {
		decision := risk.Evaluate(ctx, p, tradeable[p.Symbol], deps.Config.Risk, deps.Sector, currentPositions, exitingSymbols, newEntries)
		if !decision.Pass {
			deps.Store.InsertEvent(ctx, "info", "risk gate denied "+p.Symbol, decision)
			continue
		}
		gated = append(gated, p)
	}
	if cdec := compliance.Evaluate(gated, deps.Config.Universe); !cdec.Pass {
		deps.Store.InsertEvent(ctx, "warn", "compliance gate rejected batch", cdec)
		gated = nil
	}
	adec, err := approval.Evaluate(deps.Config.Approval.File, deps.Config.Approval.Required, now)
	if err != nil {
		deps.Logger.Warn("approval read failed", zap.Error(err))
		adec = approval.Decision{Pass: false, Reason: "approval read error"}
	}
	if !adec.Pass {
		deps.Store.InsertEvent(ctx, "warn", "approval gate cleared batch: "+adec.Reason, nil)
		gated = nil
	}

	// Step 12: per-plan Challenger -> [Finance] -> PreExec -> Execute -> Log.
	var rewards []Reward
	executed := 0
	for _, p := range gated {
		if !p.IsForcedExit() {
			hmm := hmmReadFor(shadowRecords, p.Symbol)
			challenges, outcome, err := challenger.Evaluate(ctx, deps.Store, p, deps.Config.Challenges, hmm)
			if err != nil {
				deps.Logger.Warn("challenger evaluate failed", zap.String("symbol", p.Symbol), zap.Error(err))
				continue
			}
			if outcome == challenger.OutcomeReject {
				deps.Store.InsertEvent(ctx, "info", "challenger rejected "+p.Symbol, challenges)
				continue
			}
			if outcome == challenger.OutcomeCaution {
				fdec := finance.Evaluate(p, financeInput(ctx, deps, p, currentPositions, now))
				if !fdec.Pass {
					deps.Store.InsertEvent(ctx, "info", "finance sub-review rejected "+p.Symbol, fdec)
					continue
				}
			}

			proceed, checks := preexec.Run(preExecInput(deps, p, now, loc, label, prices, bars, livePred), deps.Config.PreExecution)
			if !proceed {
				deps.Store.InsertEvent(ctx, "info", "pre-execution filters blocked "+p.Symbol, checks)
				continue
			}
		}

		price, ok := prices[p.Symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		qty := sharesFor(p, price, deps.Portfolio.Position(p.Symbol))
		if !qty.IsPositive() {
			continue
		}
		res, err := deps.Portfolio.Execute(p.Symbol, p.Side, price, qty, deps.Config.Execution.SlippageBps, deps.Config.Execution.Commission)
		if err != nil {
			deps.Logger.Warn("execute failed", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		if _, err := deps.Store.InsertTrade(ctx, p.Symbol, p.Side, qty, res.Price, res.RealizedPnL, p.Score, p); err != nil {
			deps.Logger.Warn("trade log failed", zap.String("symbol", p.Symbol), zap.Error(err))
		}
		executed++
		rewards = append(rewards, Reward{Symbol: p.Symbol, Side: p.Side, PnL: res.RealizedPnL, Score: p.Score, MemoryInfluenced: p.MemoryInfluenced})
	}
	report.PlansExecuted = executed
	report.Rewards = rewards

	// Step 13: persist portfolio snapshot, emit reward annotations.
	if err := store.WritePortfolioSnapshot(deps.Config.Documents.PortfolioSnapshotFile, deps.Portfolio.State()); err != nil {
		deps.Logger.Warn("portfolio snapshot write failed", zap.Error(err))
	}
	recordRewards(ctx, deps, rewards, label)

	return report, nil
}

func withinTradingHours(now time.Time, cfg config.HoursConfig) (bool, string) {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false, "weekend"
	}
	today := now.Format("2006-01-02")
	for _, h := range cfg.Holidays {
		if h == today {
			return false, "holiday"
		}
	}
	start, err := time.ParseInLocation("15:04", cfg.Start, now.Location())
	if err != nil {
		return false, "invalid start time"
	}
	end, err := time.ParseInLocation("15:04", cfg.End, now.Location())
	if err != nil {
		return false, "invalid end time"
	}
	startT := time.Date(now.Year(), now.Month(), now.Day(), start.Hour(), start.Minute(), 0, 0, now.Location())
	endT := time.Date(now.Year(), now.Month(), now.Day(), end.Hour(), end.Minute(), 0, 0, now.Location())
	if now.Before(startT) || now.After(endT) {
		return false, "outside trading window"
	}
	return true, ""
}

func scoreInParallel(ctx context.Context, deps Dependencies, ranked []scout.Ranked, bars map[string][]types.Bar) []scoredSymbol {
	pool := workers.NewPool(deps.Logger, workers.InvocationPoolConfig("signal-scoring", len(ranked)))
	pool.Start()
	defer pool.Stop()

	results := make([]scoredSymbol, len(ranked))
	var wg sync.WaitGroup
	for i, r := range ranked {
		i, r := i, r
		wg.Add(1)
		if err := pool.SubmitFunc(func() error {
			defer wg.Done()
			results[i] = scoreSymbol(ctx, deps, r, bars[r.Symbol])
			return nil
		}); err != nil {
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func scoreSymbol(ctx context.Context, deps Dependencies, r scout.Ranked, series []types.Bar) scoredSymbol {
	cfg := deps.Config.Signals
	rawMom := signals.Momentum(series, cfg.MomentumShort)
	rawMean := signals.MeanReversion(series, cfg.MeanRevLong)
	rawBrk := signals.Breakout(series, cfg.BreakoutLookback)

	var rawNews decimal.Decimal
	if deps.StructuredNews != nil {
		if s, ok, err := deps.StructuredNews.Sentiment(ctx, r.Symbol); err == nil && ok {
			rawNews = s
		}
	} else if deps.News != nil {
		if headlines, err := deps.News.Headlines(ctx, r.Symbol); err == nil {
			rawNews = signals.ScoreHeadlines(headlines)
		}
	}

	components := types.SignalComponents{
		RawMomentum: rawMom, RawMeanRev: rawMean, RawBreakout: rawBrk, RawNews: rawNews,
		Momentum: deps.Normalizer.Normalize(signals.FamilyMomentum, rawMom),
		MeanRev:  deps.Normalizer.Normalize(signals.FamilyMeanRev, rawMean),
		Breakout: deps.Normalizer.Normalize(signals.FamilyBreakout, rawBrk),
		News:     deps.Normalizer.Normalize(signals.FamilyNews, rawNews),
	}
	weights, composite := signals.EffectiveWeights(components, cfg.Weights)

	return scoredSymbol{
		symbol: r.Symbol, components: components, weights: weights, composite: composite,
		vol: r.Vol, returns: pctChangeReturns(series),
	}
}

func pctChangeReturns(series []types.Bar) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Close
		if prev.IsZero() {
			continue
		}
		out = append(out, series[i].Close.Sub(prev).Div(prev).InexactFloat64())
	}
	return out
}

// applyPersistenceGate drops any candidate whose composite sign
// disagrees with the latest same-day composite for that symbol.
func applyPersistenceGate(ctx context.Context, deps Dependencies, scored []scoredSymbol, now time.Time) []scoredSymbol {
	out := make([]scoredSymbol, 0, len(scored))
	for _, s := range scored {
		prior, found, err := deps.Store.LatestSignalScore(ctx, s.symbol, now)
		if err != nil || !found {
			out = append(out, s)
			continue
		}
		if prior.Sign() == s.composite.Sign() {
			out = append(out, s)
		}
	}
	return out
}

func countOpenPositions(positions map[string]*types.Position) int {
	n := 0
	for _, p := range positions {
		if !p.Quantity.IsZero() {
			n++
		}
	}
	return n
}

// sharesFor resolves the absolute share count Portfolio.Execute expects.
// Forced exits close the full held position; new entries size from the
// plan's dollar target.
func sharesFor(p types.Plan, price decimal.Decimal, pos *types.Position) decimal.Decimal {
	if p.IsForcedExit() {
		if pos == nil {
			return decimal.Zero
		}
		return pos.Quantity.Abs()
	}
	if !price.IsPositive() || !p.TargetValue.IsPositive() {
		return decimal.Zero
	}
	return p.TargetValue.Div(price).Truncate(0)
}

func financeInput(ctx context.Context, deps Dependencies, p types.Plan, currentPositions int, now time.Time) finance.Input {
	var todaysPnL decimal.Decimal
	if trades, err := deps.Store.TodaysTradesForSymbol(ctx, p.Symbol, now, 50); err == nil {
		for _, t := range trades {
			todaysPnL = todaysPnL.Add(t.PnL)
		}
	}
	return finance.Input{
		Cash: deps.Portfolio.Cash(), Equity: deps.Portfolio.Equity(),
		CurrentPositions: currentPositions, MaxPositions: deps.Config.Risk.MaxPositions,
		TodaysSymbolPnL: todaysPnL,
		CautionMinScore: deps.Config.PreExecution.CautionMinScore,
	}
}

// hmmReadFor looks up the per-cycle HMM posterior Shadow.Run computed
// for symbol, feeding Challenger's regime-mismatch check. Symbols
// absent from shadowRecords (e.g. a price feed gap) get a zero-valued
// read, which checkRegimeMismatch's thresholds never exceed.
func hmmReadFor(shadowRecords map[string]types.ShadowRecord, symbol string) challenger.HMMRead {
	rec, ok := shadowRecords[symbol]
	if !ok {
		return challenger.HMMRead{}
	}
	return challenger.HMMRead{BullProb: rec.HMMBullProb, BearProb: rec.HMMBearProb}
}

func preExecInput(deps Dependencies, p types.Plan, now time.Time, loc *time.Location, regimeLabel string, prices map[string]decimal.Decimal, bars map[string][]types.Bar, livePred regime.Prediction) preexec.Input {
	in := preexec.Input{
		Symbol: p.Symbol, Side: p.Side, Score: p.Score, Price: prices[p.Symbol],
		Now: now, TZ: loc, OriginalRegime: regimeLabel, WindowEnd: deps.Config.Hours.End,
	}
	if rs, err := store.ReadRegimeState(deps.Config.Documents.RegimeStateFile); err == nil {
		in.RegimeState = rs
	}
	if in.RegimeState == nil {
		in.LiveHMMLabel = livePred.StateLabel
		in.LiveHMMConf = decimal.NewFromFloat(livePred.Confidence)
	}
	if sign, ok := deps.Shadow.KalmanTrendSign(p.Symbol); ok {
		in.HasKalmanData = true
		in.KalmanTrend = decimal.NewFromInt(int64(sign))
	}
	for _, sector := range deps.Config.PreExecution.CryptoSymbols {
		if sector == p.Symbol {
			in.IsCryptoAdjacent = true
			break
		}
	}
	if series, ok := bars[p.Symbol]; ok && len(series) > 0 {
		in.CurrentVolume = series[len(series)-1].Volume
		lookback := deps.Config.PreExecution.VolumeLookback
		start := len(series) - 1 - lookback
		if start < 0 {
			start = 0
		}
		window := series[start : len(series)-1]
		if len(window) > 0 {
			sum := decimal.Zero
			for _, b := range window {
				sum = sum.Add(b.Volume)
			}
			in.AvgVolume = sum.Div(decimal.NewFromInt(int64(len(window))))
		}
	}
	if btc, ok := bars["BTC-USD"]; ok {
		btcPrices := make([]decimal.Decimal, len(btc))
		for i, b := range btc {
			btcPrices[i] = b.Close
		}
		in.BTCPrices = btcPrices
	}
	return in
}

func recordRewards(ctx context.Context, deps Dependencies, rewards []Reward, regimeLabel string) {
	if deps.Memory == nil {
		return
	}
	for _, r := range rewards {
		outcome := types.MemoryOutcomeWin
		if r.PnL.IsNegative() {
			outcome = types.MemoryOutcomeLoss
		}
		obs := types.AgentMemoryObservation{
			AgentName: "pm", Symbol: r.Symbol, SignalType: "composite", SignalValue: r.Score,
			Outcome: outcome, PnL: r.PnL, RegimeLabel: regimeLabel, MemoryInfluenced: r.MemoryInfluenced,
			Timestamp: time.Now().UTC(),
		}
		if err := deps.Memory.Record(ctx, obs, decimal.Zero, decimal.Zero); err != nil {
			deps.Logger.Warn("memory record failed", zap.String("symbol", r.Symbol), zap.Error(err))
		}
	}
}
