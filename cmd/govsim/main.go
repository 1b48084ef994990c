// govsim exercises the retry governor against a synthetic rate-limited
// provider. It prints per-instance backoff schedules to show fleet
// decorrelation, then runs governed calls through a provider that rate-limits
// a configurable fraction of requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"governor/pkg/config"
	"governor/pkg/llmerrors"
	"governor/pkg/logx"
	"governor/pkg/metrics"
	"governor/pkg/resilience"
	"governor/pkg/resilience/backoff"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file (falls back to $GOVERNOR_CONFIG, then defaults)")
		instances   = flag.Int("instances", 4, "synthetic fleet size for the schedule table")
		attempts    = flag.Int("attempts", 6, "backoff attempts to tabulate per instance")
		calls       = flag.Int("calls", 10, "governed calls to run against the synthetic provider")
		failureRate = flag.Float64("failure-rate", 0.5, "fraction of provider calls that rate-limit")
		metricsAddr = flag.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	)
	flag.Parse()

	logger := logx.NewLogger("govsim")

	path := *configPath
	if path == "" {
		path = os.Getenv("GOVERNOR_CONFIG")
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logger.Error("load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	printSchedules(cfg.Governor, *instances, *attempts)

	recorder := metrics.Recorder(metrics.Nop())
	if *metricsAddr != "" {
		recorder = metrics.NewPrometheusRecorder()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	runSimulation(logger, cfg.Governor, recorder, *calls, *failureRate)
}

// printSchedules tabulates jitter-decorrelated backoff delays for a synthetic
// fleet. Each column is one instance seeded as a distinct container would be.
func printSchedules(cfg config.GovernorCfg, instances, attempts int) {
	fmt.Printf("backoff schedules (base=%s max=%s jitter=%.2f)\n",
		cfg.BaseDelay.Std(), cfg.MaxDelay.Std(), cfg.JitterFactor)

	calcs := make([]*backoff.Calculator, instances)
	for i := range calcs {
		seed := backoff.SeedFor(fmt.Sprintf("container-%d", i), 1000+i)
		calcs[i] = backoff.NewCalculator(cfg.BaseDelay.Std(), cfg.MaxDelay.Std(), cfg.JitterFactor, seed)
	}

	for attempt := 0; attempt < attempts; attempt++ {
		fmt.Printf("  attempt %2d:", attempt)
		for _, c := range calcs {
			fmt.Printf(" %10s", c.Delay(attempt, 0).Round(time.Millisecond))
		}
		fmt.Println()
	}
}

func runSimulation(logger *logx.Logger, cfg config.GovernorCfg, recorder metrics.Recorder, calls int, failureRate float64) {
	govCfg := resilience.ConfigFrom(cfg)
	// Keep the demo snappy regardless of configured delays.
	if govCfg.BaseDelay > 200*time.Millisecond {
		govCfg.BaseDelay = 200 * time.Millisecond
	}
	if govCfg.MaxDelay > 2*time.Second {
		govCfg.MaxDelay = 2 * time.Second
	}

	g := resilience.New(govCfg, resilience.WithLogger(logger), resilience.WithRecorder(recorder))
	logger.Info("governor %s: %d calls at %.0f%% rate-limit probability",
		g.ID(), calls, failureRate*100)

	//nolint:gosec // Demo traffic shaping, not crypto
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	succeeded, rateLimited, fastFailed := 0, 0, 0

	for i := 0; i < calls; i++ {
		result, err := resilience.Execute(context.Background(), g, func(_ context.Context) (string, error) {
			if rng.Float64() < failureRate {
				return "", llmerrors.NewRateLimitError(429, 0, "too many requests")
			}
			return fmt.Sprintf("completion-%d", i), nil
		})

		switch {
		case err == nil:
			succeeded++
			logger.Debug("call %d: %s", i, result)
		case resilience.IsCircuitOpen(err):
			fastFailed++
			logger.Warn("call %d fast-failed: %v", i, err)
		case resilience.IsExhausted(err):
			rateLimited++
			logger.Warn("call %d exhausted retries: %v", i, err)
		default:
			logger.Error("call %d failed: %v", i, err)
		}
	}

	stats := g.GetStats()
	logger.Info("done: %d succeeded, %d exhausted, %d fast-failed (breaker %s, streak %d)",
		succeeded, rateLimited, fastFailed, stats.Circuit.State, stats.Circuit.ConsecutiveFailures)
}
