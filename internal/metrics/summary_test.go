package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"activator/internal/models"
)

func TestSummarize(t *testing.T) {
	s := Summarize(map[models.TargetKey]models.Status{
		"a|e|s|1": models.StatusUp,
		"a|e|s|2": models.StatusUp,
		"a|e|s|4": models.StatusDown,
		"a|e|s|3": models.StatusDown,
		"a|e|s|5": models.StatusUp,
		"a|e|s|6": models.StatusUnknown,
	})
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 3, s.Up)
	assert.Equal(t, 2, s.Down)
	assert.Equal(t, 1, s.Unknown)
	assert.Equal(t, 60.0, s.UpPercent)
	assert.Equal(t, []string{"a|e|s|3", "a|e|s|4"}, s.DownTargets)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.UpPercent)
	assert.NotNil(t, s.DownTargets)
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveProbe(models.StatusUp)
	c.ObserveProbe(models.StatusDown)
	c.ObserveProbe(models.StatusDown)
	c.ObserveOutcome("group", models.OutcomeSuccess)
	c.ObserveRun(12, StatusSummary{Up: 4, Down: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.probes.WithLabelValues(string(models.StatusDown))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("group", string(models.OutcomeSuccess))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.statusesCurrent.WithLabelValues(string(models.StatusUp))))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveProbe(models.StatusUp)
		c.ObserveOutcome("standalone", models.OutcomeFailed)
		c.ObserveRun(1, StatusSummary{})
	})
}
