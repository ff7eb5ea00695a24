// Package monitor probes every service in the topology and keeps the status
// cache current.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"activator/internal/executor"
	"activator/internal/metrics"
	"activator/internal/models"
	"activator/internal/pool"
	"activator/internal/storage"
	"activator/internal/topology"
)

// Sweeper dispatches status probes and records their classification.
type Sweeper struct {
	topology   topology.Provider
	exec       executor.Executor
	cache      *storage.StatusCache
	pool       *pool.Pool
	classifier *Classifier
	elevation  string
	metrics    *metrics.Collector
	log        *zap.SugaredLogger
}

// Options carries the Sweeper's collaborators.
type Options struct {
	Topology        topology.Provider
	Executor        executor.Executor
	Cache           *storage.StatusCache
	Pool            *pool.Pool
	Classifier      *Classifier
	ElevationPrefix string
	Metrics         *metrics.Collector
	Logger          *zap.SugaredLogger
}

// New creates a sweeper.
func New(opts Options) *Sweeper {
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Sweeper{
		topology:   opts.Topology,
		exec:       opts.Executor,
		cache:      opts.Cache,
		pool:       opts.Pool,
		classifier: opts.Classifier,
		elevation:  opts.ElevationPrefix,
		metrics:    opts.Metrics,
		log:        opts.Logger,
	}
}

// Sweep tracks the probes dispatched by one SweepAll call.
type Sweep struct {
	Dispatched int
	Unprobed   int
	futures    []*pool.Future[models.Status]
}

// Wait blocks until every dispatched probe has landed, ctx is done, or timeout
// elapses. It reports whether all probes landed.
func (s *Sweep) Wait(ctx context.Context, timeout time.Duration) bool {
	if len(s.futures) == 0 {
		return true
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range s.futures {
		g.Go(func() error {
			_, err := f.WaitContext(gctx)
			if gctx.Err() != nil {
				return err
			}
			return nil
		})
	}
	return g.Wait() == nil
}

// SweepAll submits one probe per service and returns without waiting for them.
// Services with no status probe are recorded unknown immediately.
func (s *Sweeper) SweepAll(ctx context.Context) *Sweep {
	apps := s.topology.Load()
	sweep := &Sweep{}

	models.Visit(apps, func(app models.Application, env models.Environment, server models.Server, svc models.Service) {
		key := models.MakeKey(app.Name, env.Name, server.Name, svc.Name)
		if _, ok := svc.StatusProbe(); !ok {
			s.record(key, models.StatusUnknown)
			sweep.Unprobed++
			return
		}
		f := pool.Submit(s.pool, func(ctx context.Context) models.Status {
			return s.probe(ctx, key, app.Name, server, svc)
		})
		sweep.futures = append(sweep.futures, f)
		sweep.Dispatched++
	})

	s.log.Infow("Status sweep dispatched", "probes", sweep.Dispatched, "unprobed", sweep.Unprobed)
	return sweep
}

// RefreshOne probes a single target on the calling goroutine. It returns false
// if the target is not in the topology.
func (s *Sweeper) RefreshOne(ctx context.Context, appName, envName, serverName, serviceName string) (models.Status, bool) {
	key := models.MakeKey(appName, envName, serverName, serviceName)
	for _, app := range s.topology.Load() {
		if app.Name != appName {
			continue
		}
		for _, env := range app.Environments {
			if env.Name != envName {
				continue
			}
			for _, server := range env.Servers {
				if server.Name != serverName {
					continue
				}
				for _, svc := range server.Services {
					if svc.Name != serviceName {
						continue
					}
					if _, ok := svc.StatusProbe(); !ok {
						s.record(key, models.StatusUnknown)
						return models.StatusUnknown, true
					}
					status := s.probe(ctx, key, app.Name, server, svc)
					s.log.Infow("Immediate status update", "target", key, "status", status)
					return status, true
				}
			}
		}
	}
	s.log.Warnw("Immediate status update for unknown target", "target", key)
	return "", false
}

// probe runs the status command and records the result. Any failure to run the
// probe counts as down.
func (s *Sweeper) probe(ctx context.Context, key models.TargetKey, application string, server models.Server, svc models.Service) (status models.Status) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Status probe panicked", "target", key, "panic", fmt.Sprint(r))
			status = models.StatusDown
			s.record(key, status)
		}
	}()

	cmd, ok := svc.StatusProbe()
	if !ok {
		s.record(key, models.StatusUnknown)
		return models.StatusUnknown
	}
	cmd = models.Elevate(cmd, server, s.elevation)

	res, err := s.exec.Execute(ctx, application, server.Address, cmd, server.OS)
	if errors.Is(err, context.Canceled) {
		// Abandoned, not observed: keep whatever the last completed probe saw.
		s.log.Debugw("Status probe cancelled", "target", key)
		previous, ok := s.cache.Get(key)
		if !ok {
			return models.StatusUnknown
		}
		return previous
	}
	if err != nil {
		s.log.Warnw("Status probe failed", "target", key, "error", err)
		status = models.StatusDown
	} else {
		status = s.classifier.Classify(svc.Name, res.Text())
	}
	s.record(key, status)
	s.log.Debugw("Updated status", "target", key, "status", status)
	return status
}

func (s *Sweeper) record(key models.TargetKey, status models.Status) {
	s.cache.Set(key, status)
	s.metrics.ObserveProbe(status)
}
