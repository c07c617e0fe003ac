package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/phy-receiver-sim/config"
	"github.com/signalsfoundry/phy-receiver-sim/core"
	"github.com/signalsfoundry/phy-receiver-sim/internal/logging"
	"github.com/signalsfoundry/phy-receiver-sim/internal/observability"
	"github.com/signalsfoundry/phy-receiver-sim/sim"
)

func main() {
	configPath := flag.String("config", "configs/receiver.yaml", "receiver configuration file")
	scenarioPath := flag.String("scenario", "configs/scenario.json", "JSON scenario to simulate")
	metricsAddr := flag.String("metrics-addr", "", "override metrics listen address from config")
	hold := flag.Bool("hold", false, "keep serving /metrics after the run until interrupted")
	flag.Parse()

	if err := run(*configPath, *scenarioPath, *metricsAddr, *hold); err != nil {
		fmt.Fprintf(os.Stderr, "phy-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, scenarioPath, metricsAddr string, hold bool) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logLevel := logging.NewDynamic(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewPhyCollector(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	addr := cfg.Metrics.ListenAddr
	if metricsAddr != "" {
		addr = metricsAddr
	}
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				log.Warn(ctx, "metrics server stopped", logging.String("error", serveErr.Error()))
			}
		}()
		defer srv.Close()
		log.Info(ctx, "serving metrics", logging.String("addr", addr))
	}

	channel := core.NewChannel()
	runner := sim.NewRunner(channel, cfg.DeciderConfig(), log, collector)

	f, err := os.Open(scenarioPath)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	scenario, err := sim.LoadScenario(runner, f)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	log.Info(ctx, "scenario loaded",
		logging.Int("transmissions", len(scenario.TransmissionIDs)),
		logging.Int("sense_requests", len(scenario.SenseRequestIDs)),
		logging.Any("noise", scenario.HasNoise))

	tracer := otel.Tracer("phy-sim")
	runCtx, span := tracer.Start(ctx, "scenario_run")
	start := time.Now()
	runErr := runner.Run()
	span.End()
	if runErr != nil {
		return fmt.Errorf("simulation aborted: %w", runErr)
	}

	log.Info(runCtx, "simulation complete",
		logging.Duration("wall_time", time.Since(start)),
		logging.Duration("sim_time", runner.Now()),
		logging.Int("deliveries", len(runner.Deliveries())),
		logging.Int("sense_answers", len(runner.SenseAnswers())))

	for _, d := range runner.Deliveries() {
		fmt.Printf("delivered %-12s at %-10v correct=%v\n", d.Frame.ID, d.At, d.Result.Correct)
	}
	for _, a := range runner.SenseAnswers() {
		fmt.Printf("answered  %-12s at %-10v idle=%v rssi=%g\n",
			a.Request.ID, a.At, a.Request.Result.Idle, a.Request.Result.RSSI)
	}

	if hold {
		// Long-lived mode: watch the config file so the log level can be
		// adjusted without a restart.
		watcher, werr := config.NewWatcher(configPath, log)
		if werr != nil {
			log.Warn(ctx, "config watcher unavailable", logging.String("error", werr.Error()))
		} else {
			watcher.OnChange(func(_, cur *config.Config) {
				logLevel.Set(logging.ParseLevel(cur.Logging.Level))
				log.Info(ctx, "log level updated", logging.String("level", cur.Logging.Level))
			})
			if werr := watcher.Start(); werr != nil {
				log.Warn(ctx, "config watcher failed to start", logging.String("error", werr.Error()))
			} else {
				defer watcher.Stop()
			}
		}

		log.Info(ctx, "holding, interrupt to exit")
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	}

	return nil
}
