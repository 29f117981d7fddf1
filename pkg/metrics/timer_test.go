package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerDurationGrows(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObservesHistogram(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "cycle_seconds",
		Help: "Cycle duration for the timer test.",
	})
	registry := prometheus.NewRegistry()
	registry.MustRegister(histogram)

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	sample := families[0].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), sample.GetSampleCount())
	assert.Greater(t, sample.GetSampleSum(), 0.0)
}

func TestTimerObservesHistogramVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "phase_seconds",
		Help: "Phase duration for the timer test.",
	}, []string{"phase"})
	registry := prometheus.NewRegistry()
	registry.MustRegister(vec)

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "discovery")

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	metric := families[0].GetMetric()[0]
	require.Len(t, metric.GetLabel(), 1)
	assert.Equal(t, "discovery", metric.GetLabel()[0].GetValue())
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}
