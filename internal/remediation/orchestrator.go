// Package remediation finds down services and restarts them: standalone
// services in parallel on the worker pool, grouped services one group at a
// time through the coordinated stop/start protocol.
//
// Runs are not mutually excluded. A manual trigger that overlaps the weekly
// run may restart the same target twice. At most one manual run is queued or
// running at a time.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"activator/internal/executor"
	"activator/internal/metrics"
	"activator/internal/models"
	"activator/internal/monitor"
	"activator/internal/pool"
	"activator/internal/schedule"
	"activator/internal/storage"
	"activator/internal/topology"
)

const (
	// ManualAck is returned to callers of TriggerManual.
	ManualAck = "Manual auto-restart initiated. Check logs for details."
	// ManualBusy is returned instead of ManualAck while an earlier manual run
	// has not finished.
	ManualBusy = "Manual auto-restart already in progress. Check logs for details."
)

// Delays are the fixed waits of a remediation run.
type Delays struct {
	PostSweepSettle time.Duration
	RestartVerify   time.Duration
	GroupStopGap    time.Duration
	GroupStartGap   time.Duration
	PostRemediation time.Duration
}

// Options carries the orchestrator's collaborators and settings.
type Options struct {
	Topology        topology.Provider
	Executor        executor.Executor
	Cache           *storage.StatusCache
	RestartLog      *storage.RestartLog
	Sweeper         *monitor.Sweeper
	Classifier      *monitor.Classifier
	Pool            *pool.Pool
	Clock           clock.Clock
	Weekly          schedule.Weekly
	Delays          Delays
	TaskTimeout     time.Duration
	ElevationPrefix string
	Metrics         *metrics.Collector
	Logger          *zap.SugaredLogger
}

// Orchestrator runs remediation passes and answers status queries.
type Orchestrator struct {
	topology    topology.Provider
	exec        executor.Executor
	cache       *storage.StatusCache
	restartLog  *storage.RestartLog
	sweeper     *monitor.Sweeper
	classifier  *monitor.Classifier
	pool        *pool.Pool
	clock       clock.Clock
	weekly      schedule.Weekly
	delays      Delays
	taskTimeout time.Duration
	elevation   string
	metrics     *metrics.Collector
	log         *zap.SugaredLogger
	groups      *GroupRestarter

	manualActive atomic.Bool
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Classifier == nil {
		opts.Classifier = monitor.NewClassifier(nil)
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	o := &Orchestrator{
		topology:    opts.Topology,
		exec:        opts.Executor,
		cache:       opts.Cache,
		restartLog:  opts.RestartLog,
		sweeper:     opts.Sweeper,
		classifier:  opts.Classifier,
		pool:        opts.Pool,
		clock:       opts.Clock,
		weekly:      opts.Weekly,
		delays:      opts.Delays,
		taskTimeout: opts.TaskTimeout,
		elevation:   opts.ElevationPrefix,
		metrics:     opts.Metrics,
		log:         opts.Logger,
	}
	o.groups = &GroupRestarter{
		exec:      opts.Executor,
		elevation: opts.ElevationPrefix,
		stopGap:   opts.Delays.GroupStopGap,
		startGap:  opts.Delays.GroupStartGap,
		pause:     o.pause,
		log:       opts.Logger.Named("group"),
	}
	return o
}

// Report describes one remediation run.
type Report struct {
	RunID        string             `json:"run_id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	DownServices []models.TargetKey `json:"down_services"`
	Groups       []GroupResult      `json:"groups"`
	Outcomes     []models.Outcome   `json:"outcomes"`
	Refreshed    bool               `json:"refreshed"`
	Err          string             `json:"error,omitempty"`
}

// Attempts lists every group and standalone outcome of the run.
func (r Report) Attempts() []models.Outcome {
	out := make([]models.Outcome, 0, len(r.Groups)+len(r.Outcomes))
	for _, g := range r.Groups {
		out = append(out, g.Outcome)
	}
	return append(out, r.Outcomes...)
}

// RunScheduledSweep refreshes every status, restarts what is down and records
// the run in the restart log.
func (o *Orchestrator) RunScheduledSweep(ctx context.Context) (report Report) {
	report = Report{RunID: uuid.NewString(), StartedAt: o.clock.Now()}
	log := o.log.With("run_id", report.RunID)
	log.Infow("Starting auto-restart service check")
	defer func() {
		report.FinishedAt = o.clock.Now()
		o.metrics.ObserveRun(report.FinishedAt.Sub(report.StartedAt).Seconds(), metrics.Summarize(o.cache.Snapshot()))
		log.Infow("Auto-restart service check completed", "down", len(report.DownServices),
			"attempts", len(report.Groups)+len(report.Outcomes), "refreshed", report.Refreshed)
	}()

	apps := o.topology.Load()
	if len(apps) == 0 {
		log.Warnw("No applications found in topology")
		report.Err = "no applications found in topology"
		return report
	}

	if !o.sweeper.SweepAll(ctx).Wait(ctx, o.delays.PostSweepSettle) {
		log.Warnw("Not every probe landed within the settle delay", "settle", o.delays.PostSweepSettle)
	}
	if err := ctx.Err(); err != nil {
		report.Err = err.Error()
		return report
	}
	statuses := o.cache.Snapshot()

	groupNames, groups, standalone := partition(apps, statuses)
	report.DownServices = sortedDown(statuses, apps)

	for _, name := range groupNames {
		members := groups[name]
		if !anyDown(members) {
			continue
		}
		log.Infow("Group has down services, performing coordinated restart", "group", name)
		result := o.groups.Restart(ctx, name, members)
		o.metrics.ObserveOutcome("group", result.Outcome.Kind)
		report.Groups = append(report.Groups, result)
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() == nil {
		report.Outcomes = o.dispatchStandalone(ctx, standalone)
	}
	o.appendRunLog(report)

	if len(report.Groups) > 0 || len(report.Outcomes) > 0 {
		report.Refreshed = o.refreshAfterRemediation(ctx)
	}
	return report
}

// dispatchStandalone restarts every target on the pool and collects outcomes,
// waiting at most the task timeout for each. A timed out task keeps running.
func (o *Orchestrator) dispatchStandalone(ctx context.Context, targets []standaloneTarget) []models.Outcome {
	if len(targets) == 0 {
		return nil
	}
	futures := make([]*pool.Future[models.Outcome], len(targets))
	for i, t := range targets {
		futures[i] = pool.Submit(o.pool, func(ctx context.Context) models.Outcome {
			return o.restartStandalone(ctx, t)
		})
	}
	o.log.Infow("Waiting for restart tasks", "tasks", len(futures))

	outcomes := make([]models.Outcome, 0, len(futures))
	for i, f := range futures {
		out, err := f.Wait(o.taskTimeout)
		switch {
		case errors.Is(err, pool.ErrTimeout):
			out = models.Outcome{Key: string(targets[i].key), Kind: models.OutcomeTimeout,
				Message: fmt.Sprintf("Service restart timed out after %s", o.taskTimeout)}
		case err != nil:
			out = models.Outcome{Key: string(targets[i].key), Kind: models.OutcomeError, Message: err.Error()}
		}
		o.metrics.ObserveOutcome("standalone", out.Kind)
		o.log.Infow("Restart task finished", "target", out.Key, "result", out.String())
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) appendRunLog(r Report) {
	attempts := r.Attempts()
	o.restartLog.Append(fmt.Sprintf("[%s] Auto-restart check completed. Down services found: %d, Restart attempts: %d",
		r.StartedAt.Format(time.RFC3339), len(r.DownServices), len(attempts)))

	if len(r.DownServices) > 0 {
		keys := make([]string, len(r.DownServices))
		for i, k := range r.DownServices {
			keys[i] = string(k)
		}
		o.restartLog.Append("Down services: " + strings.Join(keys, ", "))
	}
	if len(attempts) > 0 {
		lines := make([]string, len(attempts))
		for i, a := range attempts {
			lines[i] = a.String()
		}
		o.restartLog.Append("Restart results: " + strings.Join(lines, "; "))
	}
}

// refreshAfterRemediation gives restarted services time to come up, then
// sweeps again so observers see the new state.
func (o *Orchestrator) refreshAfterRemediation(ctx context.Context) bool {
	if err := o.pause(ctx, o.delays.PostRemediation); err != nil {
		o.log.Warnw("Status refresh after remediation skipped", "error", err)
		return false
	}
	o.sweeper.SweepAll(ctx).Wait(ctx, o.delays.PostSweepSettle)
	o.log.Infow("Service statuses refreshed after auto-restart")
	return true
}

// TriggerManual starts a remediation run on the pool and returns immediately.
// Failures of the run are logged, never returned. A trigger arriving while the
// previous manual run is still queued or running is ignored.
func (o *Orchestrator) TriggerManual() string {
	if !o.manualActive.CompareAndSwap(false, true) {
		o.log.Infow("Manual auto-restart already in progress, ignoring trigger")
		return ManualBusy
	}
	o.log.Infow("Manual auto-restart triggered")
	f := o.pool.Go(func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				o.log.Errorw("Manual restart failed", "panic", fmt.Sprint(r))
				o.restartLog.Append(fmt.Sprintf("[%s] Manual restart failed: %v", o.clock.Now().Format(time.RFC3339), r))
			}
		}()
		o.RunScheduledSweep(ctx)
	})
	select {
	case <-f.Done():
		o.manualActive.Store(false)
		if _, err := f.Wait(0); err != nil {
			o.log.Errorw("Manual restart could not be scheduled", "error", err)
		}
	default:
		go func() {
			<-f.Done()
			o.manualActive.Store(false)
		}()
	}
	return ManualAck
}

// RefreshServiceStatuses runs a full sweep and waits for it to settle.
func (o *Orchestrator) RefreshServiceStatuses(ctx context.Context) {
	o.log.Infow("Manual service status refresh triggered")
	if !o.sweeper.SweepAll(ctx).Wait(ctx, o.delays.PostSweepSettle) {
		o.log.Warnw("Manual status refresh returned before every probe landed")
	}
}

// UpdateServiceStatus re-probes one target immediately.
func (o *Orchestrator) UpdateServiceStatus(ctx context.Context, app, env, server, service string) (models.Status, bool) {
	return o.sweeper.RefreshOne(ctx, app, env, server, service)
}

// AllStatuses returns a copy of the status cache.
func (o *Orchestrator) AllStatuses() map[models.TargetKey]models.Status {
	return o.cache.Snapshot()
}

// CurrentDownServices returns the targets currently down, sorted.
func (o *Orchestrator) CurrentDownServices() []models.TargetKey {
	return o.cache.KeysWithStatus(models.StatusDown)
}

// RestartLogs returns the restart log, oldest first.
func (o *Orchestrator) RestartLogs() []string {
	return o.restartLog.Snapshot()
}

// NextScheduledRestart returns when the weekly run fires next.
func (o *Orchestrator) NextScheduledRestart() time.Time {
	return o.weekly.Next(o.clock.Now())
}

// pause is a fixed, non-cancellable wait. A cancelled ctx is only noticed at
// the boundary, before the wait starts.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		o.clock.Sleep(d)
	}
	return nil
}

// partition splits the topology into groups (first-seen order) and the down
// standalone services. Database services are left alone.
func partition(apps []models.Application, statuses map[models.TargetKey]models.Status) ([]string, map[string][]models.GroupedService, []standaloneTarget) {
	var (
		names      []string
		groups     = make(map[string][]models.GroupedService)
		standalone []standaloneTarget
	)
	models.Visit(apps, func(app models.Application, env models.Environment, server models.Server, svc models.Service) {
		if svc.DBType != "" {
			return
		}
		key := models.MakeKey(app.Name, env.Name, server.Name, svc.Name)
		status := statuses[key]
		if svc.Grouped() {
			group := strings.TrimSpace(svc.Group)
			if _, seen := groups[group]; !seen {
				names = append(names, group)
			}
			groups[group] = append(groups[group], models.GroupedService{
				Key:         key,
				Group:       group,
				Application: app.Name,
				Environment: env.Name,
				Server:      server,
				Service:     svc,
				Status:      status,
			})
			return
		}
		if status == models.StatusDown {
			standalone = append(standalone, standaloneTarget{key: key, application: app.Name, server: server, service: svc})
		}
	})
	return names, groups, standalone
}

// sortedDown lists the down targets that are still part of the topology.
func sortedDown(statuses map[models.TargetKey]models.Status, apps []models.Application) []models.TargetKey {
	var keys []models.TargetKey
	models.Visit(apps, func(app models.Application, env models.Environment, server models.Server, svc models.Service) {
		key := models.MakeKey(app.Name, env.Name, server.Name, svc.Name)
		if statuses[key] == models.StatusDown {
			keys = append(keys, key)
		}
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func anyDown(members []models.GroupedService) bool {
	for _, m := range members {
		if m.Status == models.StatusDown {
			return true
		}
	}
	return false
}
