package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"activator/internal/config"
	"activator/internal/executor"
	"activator/internal/logger"
	"activator/internal/metrics"
	"activator/internal/models"
	"activator/internal/monitor"
	"activator/internal/pool"
	"activator/internal/remediation"
	"activator/internal/schedule"
	"activator/internal/storage"
	"activator/internal/topology"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg          config.Config
	log          *zap.SugaredLogger
	registry     *prometheus.Registry
	pool         *pool.Pool
	sweeper      *monitor.Sweeper
	orchestrator *remediation.Orchestrator
	weekly       schedule.Weekly
	fake         *executor.Fake
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	logger.Initialize(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func weeklyRule(cfg config.Config) (schedule.Weekly, error) {
	day, err := config.ParseWeekday(cfg.Remediation.Weekday)
	if err != nil {
		return schedule.Weekly{}, err
	}
	hour, minute, err := config.ParseClock(cfg.Remediation.Time)
	if err != nil {
		return schedule.Weekly{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return schedule.Weekly{}, err
	}
	return schedule.Weekly{Weekday: day, Hour: hour, Minute: minute, Location: loc}, nil
}

func newExecutor(cfg config.Config, log *zap.SugaredLogger) (executor.Executor, *executor.Fake, error) {
	if dryRun {
		fake := executor.NewFake()
		fake.Default = executor.FakeResponse{Result: models.ExecResult{Succeeded: true, Output: "dry run"}}
		return fake, fake, nil
	}
	creds := executor.NewStaticCredentials(cfg.Credentials)
	switch cfg.Executor.Kind {
	case config.ExecutorSSH:
		ex, err := executor.NewSSH(cfg.Executor.SSHPort, cfg.Executor.ConnectTimeout.D(), cfg.Executor.KnownHosts, creds, log.Named("ssh"))
		return ex, nil, err
	default:
		return executor.NewAnsible(cfg.Executor.AnsibleBinary, creds, log.Named("ansible")), nil, nil
	}
}

// withApp wires the activator around a worker pool that lives exactly as long
// as fn. The pool is drained within the configured grace period before
// withApp returns.
func withApp(cfg config.Config, fn func(*app) error) error {
	defer func() { _ = logger.Sync() }()

	var a *app
	err := pool.With(cfg.Pool.Width, cfg.Pool.ShutdownGrace.D(), logger.For("pool"), func(workers *pool.Pool) error {
		var err error
		if a, err = newApp(cfg, workers); err != nil {
			printError("initialise activator", err)
			return err
		}
		return fn(a)
	})
	if a != nil {
		a.printDryRun()
	}
	if errors.Is(err, pool.ErrGraceExceeded) {
		logger.For("activator").Warnw("Worker pool shutdown", "error", err)
		return nil
	}
	return err
}

func newApp(cfg config.Config, workers *pool.Pool) (*app, error) {
	log := logger.For("activator")

	weekly, err := weeklyRule(cfg)
	if err != nil {
		return nil, err
	}
	exec, fake, err := newExecutor(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)

	metrics.RegisterPool(registry, workers.Running, workers.Queued)

	provider := topology.NewFileProvider(cfg.Topology.Files, logger.For("topology"))
	cache := storage.NewStatusCache()
	classifier := monitor.NewClassifier(cfg.Classification.ProcessNames)

	sweeper := monitor.New(monitor.Options{
		Topology:        provider,
		Executor:        exec,
		Cache:           cache,
		Pool:            workers,
		Classifier:      classifier,
		ElevationPrefix: cfg.Classification.ElevationPrefix,
		Metrics:         collector,
		Logger:          logger.For("monitor"),
	})

	orchestrator := remediation.New(remediation.Options{
		Topology:   provider,
		Executor:   exec,
		Cache:      cache,
		RestartLog: storage.NewRestartLog(storage.DefaultRestartLogCapacity),
		Sweeper:    sweeper,
		Classifier: classifier,
		Pool:       workers,
		Weekly:     weekly,
		Delays: remediation.Delays{
			PostSweepSettle: cfg.Delays.PostSweepSettle.D(),
			RestartVerify:   cfg.Delays.RestartVerify.D(),
			GroupStopGap:    cfg.Delays.GroupStopGap.D(),
			GroupStartGap:   cfg.Delays.GroupStartGap.D(),
			PostRemediation: cfg.Delays.PostRemediation.D(),
		},
		TaskTimeout:     cfg.Remediation.TaskTimeout.D(),
		ElevationPrefix: cfg.Classification.ElevationPrefix,
		Metrics:         collector,
		Logger:          logger.For("remediation"),
	})

	return &app{
		cfg:          cfg,
		log:          log,
		registry:     registry,
		pool:         workers,
		sweeper:      sweeper,
		orchestrator: orchestrator,
		weekly:       weekly,
		fake:         fake,
	}, nil
}

func (a *app) printDryRun() {
	if a.fake == nil {
		return
	}
	for _, c := range a.fake.Calls() {
		fmt.Printf("dry-run: %s@%s: %s\n", c.Application, c.Address, c.Command)
	}
}

func formatTime(t time.Time) string {
	return t.Format("Mon 2006-01-02 15:04 MST")
}
