// Package metrics exports one invocation's outcome to a Prometheus
// pushgateway. The engine has no listen socket (spec §6) so there is
// nothing for a scraper to pull from between runs; push is the only
// model that fits a process that starts, does one decision cycle, and
// exits. Grounded on the teacher's backtester.MetricsCalculator for the
// "one calculator, one Observe-then-read-off-fields" shape, rebuilt
// around a private prometheus registry plus push since the teacher never wired client_golang to
// an actual collector despite carrying it in go.mod.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/atlas-desktop/trading-engine/internal/config"
	"github.com/atlas-desktop/trading-engine/internal/workflow"
)

// Recorder owns one invocation's worth of Prometheus collectors and
// pushes them to cfg.PushGatewayURL on Push. A zero PushGatewayURL
// disables export entirely; Push becomes a no-op so the engine never
// fails an invocation over unreachable observability infrastructure.
type Recorder struct {
	registry *prometheus.Registry

	candidatesTotal prometheus.Gauge
	plansExecuted   prometheus.Gauge
	forcedExits     prometheus.Gauge
	rewardCount     prometheus.Gauge
	realizedPnL     prometheus.Gauge
	invocationSecs  prometheus.Gauge
	skipped         prometheus.Gauge
	regime          *prometheus.GaugeVec

	pushGatewayURL string
	jobName        string
}

// New builds a Recorder with a private registry, so several Recorders
// (there is one per process, but tests may build more) never collide
// on the default global registry.
func New(cfg config.MetricsConfig) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		candidatesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_candidates_total", Help: "Symbols scored in the last invocation.",
		}),
		plansExecuted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_plans_executed", Help: "Plans executed in the last invocation.",
		}),
		forcedExits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_forced_exits", Help: "Forced exits triggered in the last invocation.",
		}),
		rewardCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_rewards_total", Help: "Reward observations recorded in the last invocation.",
		}),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_realized_pnl", Help: "Sum of realized PnL across the last invocation's trades.",
		}),
		invocationSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_invocation_duration_seconds", Help: "Wall-clock duration of the last invocation.",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_skipped", Help: "1 if the last invocation skipped trading (outside hours/holiday), else 0.",
		}),
		regime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_regime", Help: "1 for the active regime label, 0 for all others.",
		}, []string{"label"}),
		pushGatewayURL: cfg.PushGatewayURL,
		jobName:        cfg.JobName,
	}
	reg.MustRegister(r.candidatesTotal, r.plansExecuted, r.forcedExits, r.rewardCount,
		r.realizedPnL, r.invocationSecs, r.skipped, r.regime)
	return r
}

// Observe fills the collectors from one InvocationReport. Call once
// per process run, immediately before Push.
func (r *Recorder) Observe(report *workflow.InvocationReport, duration time.Duration) {
	r.candidatesTotal.Set(float64(report.CandidatesTotal))
	r.plansExecuted.Set(float64(report.PlansExecuted))
	r.forcedExits.Set(float64(report.ForcedExits))
	r.rewardCount.Set(float64(len(report.Rewards)))
	r.invocationSecs.Set(duration.Seconds())

	if report.SkipReason != "" {
		r.skipped.Set(1)
	} else {
		r.skipped.Set(0)
	}

	var pnl float64
	for _, rw := range report.Rewards {
		f, _ := rw.PnL.Float64()
		pnl += f
	}
	r.realizedPnL.Set(pnl)

	r.regime.Reset()
	if report.RegimeLabel != "" {
		r.regime.WithLabelValues(report.RegimeLabel).Set(1)
	}
}

// Push ships the registry to the configured pushgateway. A blank
// PushGatewayURL is treated as "metrics disabled" rather than an
// error, since spec §1 scopes a dashboard out but ambient metrics
// plumbing still needs somewhere honest to go when unconfigured.
func (r *Recorder) Push() error {
	if r.pushGatewayURL == "" {
		return nil
	}
	job := r.jobName
	if job == "" {
		job = "trading-engine"
	}
	if err := push.New(r.pushGatewayURL, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", r.pushGatewayURL, err)
	}
	return nil
}
