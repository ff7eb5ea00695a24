package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var thursdayRule = Weekly{Weekday: time.Thursday, Hour: 16, Minute: 30, Location: time.UTC}

func TestWeeklyNext(t *testing.T) {
	thursday := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	sameDay := time.Date(2024, 5, 2, 16, 30, 0, 0, time.UTC)
	nextWeek := time.Date(2024, 5, 9, 16, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"hour before on the weekday", thursday.Add(15*time.Hour + 30*time.Minute), sameDay},
		{"exactly at the time", sameDay, sameDay},
		{"hour after on the weekday", thursday.Add(17*time.Hour + 30*time.Minute), nextWeek},
		{"earlier in the week", time.Date(2024, 4, 29, 9, 0, 0, 0, time.UTC), sameDay},
		{"day after", time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC), nextWeek},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, thursdayRule.Next(tt.now))
		})
	}
}

func TestWeeklyNextAfterIsStrict(t *testing.T) {
	at := time.Date(2024, 5, 2, 16, 30, 0, 0, time.UTC)
	assert.Equal(t, at.AddDate(0, 0, 7), thursdayRule.NextAfter(at))
	assert.Equal(t, at, thursdayRule.NextAfter(at.Add(-time.Second)))
}

func TestWeeklyNextUsesLocation(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*3600)
	rule := Weekly{Weekday: time.Thursday, Hour: 16, Minute: 30, Location: berlin}

	now := time.Date(2024, 5, 2, 13, 0, 0, 0, time.UTC)
	next := rule.Next(now)
	assert.Equal(t, time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC), next.UTC())
}

func TestLoopRunsSweepsAndWeeklyRemediation(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 2, 15, 30, 0, 0, time.UTC))

	sweeps := make(chan struct{}, 16)
	remediations := make(chan struct{}, 4)
	loop := NewLoop(Config{
		Clock:     mock,
		Interval:  5 * time.Minute,
		Weekly:    thursdayRule,
		Sweep:     func(context.Context) { sweeps <- struct{}{} },
		Remediate: func(context.Context) { remediations <- struct{}{} },
		Logger:    zaptest.NewLogger(t).Sugar(),
	})
	loop.Start(context.Background())
	defer loop.Stop()

	waitFor(t, sweeps, "initial sweep")
	assert.Empty(t, remediations)

	mock.Add(5 * time.Minute)
	waitFor(t, sweeps, "interval sweep")

	mock.Add(55 * time.Minute)
	waitFor(t, remediations, "weekly remediation")
	mock.Add(time.Minute)
	assert.Equal(t, time.Date(2024, 5, 9, 16, 30, 0, 0, time.UTC), loop.NextRemediation())
}

func TestLoopRemediatesOnStartWhenEnabled(t *testing.T) {
	mock := clock.NewMock()
	remediations := make(chan struct{}, 1)
	loop := NewLoop(Config{
		Clock:            mock,
		Weekly:           thursdayRule,
		Sweep:            func(context.Context) {},
		Remediate:        func(context.Context) { remediations <- struct{}{} },
		RemediateOnStart: true,
	})
	loop.Start(context.Background())
	defer loop.Stop()

	waitFor(t, remediations, "startup remediation")
}

func TestLoopStopWaitsForRemediation(t *testing.T) {
	mock := clock.NewMock()
	started := make(chan struct{})
	finished := make(chan struct{})
	loop := NewLoop(Config{
		Clock:  mock,
		Weekly: thursdayRule,
		Sweep:  func(context.Context) {},
		Remediate: func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(finished)
		},
		RemediateOnStart: true,
	})
	loop.Start(context.Background())
	<-started

	loop.Stop()
	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the remediation run ended")
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for "+what)
	}
}
