// Package main is the engine's single entry point: "engine run --config
// <path>" executes exactly one Workflow invocation and exits. There is no
// daemon socket and no second subcommand to justify a cobra-style tree
// (spec §6), matching the teacher's cmd/server single-binary shape
// reduced to one command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/engineerr"
	"github.com/atlas-desktop/trading-engine/internal/marketdata"
	"github.com/atlas-desktop/trading-engine/internal/memory"
	"github.com/atlas-desktop/trading-engine/internal/metrics"
	"github.com/atlas-desktop/trading-engine/internal/portfolio"
	"github.com/atlas-desktop/trading-engine/internal/regime"
	"github.com/atlas-desktop/trading-engine/internal/signals"
	"github.com/atlas-desktop/trading-engine/internal/store"
	"github.com/atlas-desktop/trading-engine/internal/workflow"
	"github.com/atlas-desktop/trading-engine/pkg/types"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: engine run --config <path>")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the engine's YAML config document")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, cancelling invocation")
		cancel()
	}()

	start := time.Now()
	report, err := run(ctx, cfg, logger)
	duration := time.Since(start)
	if err != nil {
		var cfgErr *engineerr.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Fatal("config error", zap.Error(err))
		}
		logger.Error("invocation failed", zap.Error(err))
		os.Exit(1)
	}

	recorder := metrics.New(cfg.Metrics)
	recorder.Observe(report, duration)
	if err := recorder.Push(); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}

	logger.Info("invocation complete",
		zap.Bool("traded_hours", report.TradingHours),
		zap.String("skip_reason", report.SkipReason),
		zap.String("regime", report.RegimeLabel),
		zap.Int("candidates", report.CandidatesTotal),
		zap.Int("plans_executed", report.PlansExecuted),
		zap.Int("forced_exits", report.ForcedExits),
	)
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (*workflow.InvocationReport, error) {
	st, err := store.Open(ctx, cfg.Logging.DBPath, logger)
	if err != nil {
		return nil, &engineerr.ConfigError{Op: "store.Open", Err: err}
	}
	defer st.Close()

	initial := types.PortfolioState{Cash: cfg.Risk.Equity, Positions: map[string]*types.Position{}}
	if snapshot, err := store.ReadPortfolioSnapshot(cfg.Documents.PortfolioSnapshotFile); err != nil {
		logger.Warn("portfolio snapshot unreadable, starting flat", zap.Error(err))
	} else if snapshot != nil {
		initial = *snapshot
	}
	pf := portfolio.New(initial)

	var agentMemory *memory.AgentMemory
	if cfg.AgentMemory.Enabled {
		agentMemory = memory.New(st.DB(), "pm", memory.Config{
			RollingWindow:      cfg.AgentMemory.RollingWindow,
			MaxAgeDays:         cfg.AgentMemory.MaxAgeDays,
			MinSamples:         cfg.AgentMemory.MinSamples,
			MaxAdjustment:      cfg.AgentMemory.MaxAdjustment,
			UnderperformThresh: cfg.AgentMemory.UnderperformThresh,
			DecayHalflifeDays:  cfg.AgentMemory.DecayHalflifeDays,
			RegimeMatching:     cfg.AgentMemory.RegimeMatching,
		})
	}

	shadowRunner := regime.NewRunner(
		cfg.ShadowMode.Kalman.ProcessVariance,
		cfg.ShadowMode.Kalman.MeasurementVariance,
		cfg.ShadowMode.HMM.RefitInterval,
		logger,
	)

	deps := workflow.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Store:      st,
		MarketData: marketdata.New(&unconfiguredBarSource{logger: logger}, logger),
		Portfolio:  pf,
		Memory:     agentMemory,
		Shadow:     shadowRunner,
		News:       nil,
		Sector:     &unconfiguredSectorProvider{logger: logger},
		Normalizer: signals.NewNormalizer(cfg.Signals.NormLookback),
	}

	return workflow.Run(ctx, deps)
}

// unconfiguredBarSource reports a transient failure on every call. Spec
// §8 ships no concrete market-data adapter; Workflow treats the
// resulting data gap as an empty universe and still completes the
// invocation (spec §7).
type unconfiguredBarSource struct {
	logger *zap.Logger
}

func (u *unconfiguredBarSource) Fetch(ctx context.Context, symbols []string, interval string, lookback int) (map[string][]types.Bar, error) {
	u.logger.Warn("no market data adapter configured")
	return nil, &engineerr.TransientExternal{Op: "marketdata.Fetch", Err: fmt.Errorf("no adapter configured")}
}

// unconfiguredSectorProvider returns a neutral sentiment for every
// sector, matching risk.Evaluate's documented fallback when the
// external collaborator is unavailable.
type unconfiguredSectorProvider struct {
	logger *zap.Logger
}

func (u *unconfiguredSectorProvider) SectorSentiment(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}
	encoding := cfg.Format
	if encoding == "" {
		encoding = "console"
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
