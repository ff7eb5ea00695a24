// Package schedule drives the recurring sweep and the weekly remediation run
// from one loop.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Weekly fires once a week at a fixed weekday and time of day.
type Weekly struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the upcoming occurrence at or after now. On the rule's weekday
// after the configured time it rolls over to the following week.
func (w Weekly) Next(now time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	days := (int(w.Weekday) - int(now.Weekday()) + 7) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+days, w.Hour, w.Minute, 0, 0, loc)
	if next.Before(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// NextAfter returns the first occurrence strictly after t.
func (w Weekly) NextAfter(t time.Time) time.Time {
	next := w.Next(t)
	if !next.After(t) {
		next = w.Next(t.Add(time.Minute))
	}
	return next
}

// Loop fires the sweep on a fixed interval and the remediation run on a
// weekly rule. Both callbacks run on the loop goroutine; Sweep must not block.
type Loop struct {
	clock      clock.Clock
	interval   time.Duration
	weekly     Weekly
	sweep      func(ctx context.Context)
	remediate  func(ctx context.Context)
	remOnStart bool
	log        *zap.SugaredLogger

	cancel context.CancelFunc
	doneCh chan struct{}
	runs   sync.WaitGroup
}

// Config configures a Loop.
type Config struct {
	Clock            clock.Clock
	Interval         time.Duration
	Weekly           Weekly
	Sweep            func(ctx context.Context)
	Remediate        func(ctx context.Context)
	RemediateOnStart bool
	Logger           *zap.SugaredLogger
}

// NewLoop creates a loop; call Start to run it.
func NewLoop(cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Loop{
		clock:      cfg.Clock,
		interval:   cfg.Interval,
		weekly:     cfg.Weekly,
		sweep:      cfg.Sweep,
		remediate:  cfg.Remediate,
		remOnStart: cfg.RemediateOnStart,
		log:        cfg.Logger,
		doneCh:     make(chan struct{}),
	}
}

// Start launches the loop in a goroutine.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.run(ctx)
}

// Stop cancels the loop and waits for it and any remediation run it started.
// A run in progress stops at its next delay boundary.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.doneCh
	l.runs.Wait()
}

// NextRemediation returns when the weekly rule fires next, relative to now.
func (l *Loop) NextRemediation() time.Time {
	return l.weekly.Next(l.clock.Now())
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.doneCh)

	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	next := l.weekly.NextAfter(l.clock.Now())
	timer := l.clock.Timer(next.Sub(l.clock.Now()))
	defer timer.Stop()
	l.log.Infow("Scheduler started", "sweep_interval", l.interval, "next_remediation", next)

	l.sweep(ctx)
	if l.remOnStart {
		l.startRemediation(ctx)
	}

	for {
		select {
		case <-ticker.C:
			l.sweep(ctx)
		case <-timer.C:
			l.startRemediation(ctx)
			next = l.weekly.NextAfter(l.clock.Now())
			timer.Reset(next.Sub(l.clock.Now()))
			l.log.Infow("Next remediation scheduled", "at", next)
		case <-ctx.Done():
			return
		}
	}
}

// startRemediation runs the remediation callback off the loop goroutine so
// sweeps keep their cadence during a long run.
func (l *Loop) startRemediation(ctx context.Context) {
	l.runs.Add(1)
	go func() {
		defer l.runs.Done()
		l.remediate(ctx)
	}()
}
