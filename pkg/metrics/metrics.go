package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Convergence loop metrics
	ConvergenceCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anchor_convergence_cycles_total",
			Help: "Total number of convergence cycles by outcome",
		},
		[]string{"outcome"},
	)

	ConvergenceCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anchor_convergence_cycle_duration_seconds",
			Help:    "Duration of one discover/calculate/apply cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChangesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchor_changes_applied_total",
			Help: "Total number of change trees applied successfully",
		},
	)

	ChangesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchor_changes_failed_total",
			Help: "Total number of change trees that failed",
		},
	)

	StateReportsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchor_state_reports_failed_total",
			Help: "Total number of failed state reports to the controller",
		},
	)

	// Local inventory metrics
	ApplicationsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anchor_applications_running",
			Help: "Number of application units currently running on this node",
		},
	)

	VolumesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anchor_volumes_total",
			Help: "Number of locally-owned dataset volumes",
		},
	)

	// Controller connection metrics
	ControllerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anchor_controller_connected",
			Help: "Whether the agent is connected to the controller (1 = connected)",
		},
	)
)

func init() {
	prometheus.MustRegister(ConvergenceCycles)
	prometheus.MustRegister(ConvergenceCycleDuration)
	prometheus.MustRegister(ChangesApplied)
	prometheus.MustRegister(ChangesFailed)
	prometheus.MustRegister(StateReportsFailed)
	prometheus.MustRegister(ApplicationsRunning)
	prometheus.MustRegister(VolumesTotal)
	prometheus.MustRegister(ControllerConnected)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
