package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"activator/internal/logger"
	"activator/internal/schedule"
	"activator/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	Long: `Runs the health sweep on its interval, the weekly remediation pass and the
HTTP API until interrupted. Metrics and health endpoints listen on their own
addresses.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("load config", err)
		return err
	}
	return withApp(cfg, serve)
}

func serve(a *app) error {
	cfg := a.cfg
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	health.AddReadinessCheck("worker-pool", func() error {
		if a.pool.Queued() > 100*a.pool.Width() {
			return errors.New("worker pool saturated")
		}
		return nil
	})
	go serveAux(cfg.HealthAddr, health, "healthcheck")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	go serveAux(cfg.MetricsAddr, metricsMux, "metrics")

	loop := schedule.NewLoop(schedule.Config{
		Interval: cfg.Sweep.Interval.D(),
		Weekly:   a.weekly,
		Sweep: func(ctx context.Context) {
			a.sweeper.SweepAll(ctx)
		},
		Remediate: func(ctx context.Context) {
			a.orchestrator.RunScheduledSweep(ctx)
		},
		RemediateOnStart: cfg.Remediation.RunOnStartup,
		Logger:           logger.For("schedule"),
	})
	loop.Start(ctx)
	defer loop.Stop()

	srv := server.New(cfg.HTTPAddr, a.orchestrator, logger.For("http"))
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warnw("Server shutdown", "error", err)
		}
	}()

	a.log.Infow("Activator listening", "addr", cfg.HTTPAddr, "sweep_interval", cfg.Sweep.Interval.D(),
		"next_remediation", formatTime(a.orchestrator.NextScheduledRestart()))
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Errorw("Server error", "error", err)
		return err
	}
	return nil
}

func serveAux(addr string, handler http.Handler, name string) {
	if addr == "" {
		return
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.For(name).Errorw("Error starting listener", "addr", addr, "error", err)
	}
}
