package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Collaborator names tracked for readiness. The agent cannot converge
// without all three.
const (
	CollaboratorContainerd = "containerd"
	CollaboratorVolumes    = "volumes"
	CollaboratorController = "controller"
)

var readinessCollaborators = []string{
	CollaboratorContainerd,
	CollaboratorVolumes,
	CollaboratorController,
}

// failedOutcomes are the convergence cycle outcomes that degrade health.
var failedOutcomes = map[string]bool{
	"discovery_failed":   true,
	"calculation_failed": true,
	"changes_failed":     true,
}

// CollaboratorHealth is the last known condition of one collaborator.
type CollaboratorHealth struct {
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CycleHealth is the outcome of the most recent convergence cycle.
type CycleHealth struct {
	Outcome    string    `json:"outcome"`
	FinishedAt time.Time `json:"finished_at"`
}

// HealthReport is the body served on /health and /ready.
type HealthReport struct {
	Status        string                        `json:"status"`
	Version       string                        `json:"version,omitempty"`
	Uptime        string                        `json:"uptime"`
	Collaborators map[string]CollaboratorHealth `json:"collaborators,omitempty"`
	LastCycle     *CycleHealth                  `json:"last_cycle,omitempty"`
}

// agentHealth aggregates collaborator conditions and convergence outcomes
// into the health and readiness endpoints.
type agentHealth struct {
	mu            sync.RWMutex
	startedAt     time.Time
	version       string
	collaborators map[string]CollaboratorHealth
	lastCycle     *CycleHealth
}

var health = newAgentHealth()

func newAgentHealth() *agentHealth {
	return &agentHealth{
		startedAt:     time.Now(),
		collaborators: map[string]CollaboratorHealth{},
	}
}

// SetVersion records the agent version served in health responses.
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// SetCollaboratorHealth records the condition of a collaborator. Detail
// carries the failure cause when unhealthy.
func SetCollaboratorHealth(name string, healthy bool, detail string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.collaborators[name] = CollaboratorHealth{
		Healthy:   healthy,
		Detail:    detail,
		UpdatedAt: time.Now(),
	}
}

// ObserveCycle records the outcome of a finished convergence cycle. A failed
// outcome degrades the health report until a later cycle succeeds.
func ObserveCycle(outcome string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.lastCycle = &CycleHealth{Outcome: outcome, FinishedAt: time.Now()}
}

// Health reports overall agent condition: unhealthy when any collaborator is
// down, degraded when the most recent convergence cycle failed.
func Health() HealthReport {
	health.mu.RLock()
	defer health.mu.RUnlock()

	report := health.report()
	report.Status = "healthy"
	for _, collaborator := range health.collaborators {
		if !collaborator.Healthy {
			report.Status = "unhealthy"
		}
	}
	if report.Status == "healthy" && health.lastCycle != nil && failedOutcomes[health.lastCycle.Outcome] {
		report.Status = "degraded"
	}
	return report
}

// Ready reports whether the agent can converge: every collaborator it needs
// must have been wired up and be healthy.
func Ready() HealthReport {
	health.mu.RLock()
	defer health.mu.RUnlock()

	report := health.report()
	report.Status = "ready"
	for _, name := range readinessCollaborators {
		collaborator, wired := health.collaborators[name]
		if !wired || !collaborator.Healthy {
			report.Status = "not_ready"
		}
	}
	return report
}

// report builds the shared parts of a health response. Callers hold the lock.
func (h *agentHealth) report() HealthReport {
	collaborators := make(map[string]CollaboratorHealth, len(h.collaborators))
	for name, collaborator := range h.collaborators {
		collaborators[name] = collaborator
	}
	return HealthReport{
		Version:       h.version,
		Uptime:        time.Since(h.startedAt).String(),
		Collaborators: collaborators,
		LastCycle:     h.lastCycle,
	}
}

// HealthHandler serves the overall health report; 503 when unhealthy.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Health(), func(status string) bool {
			return status != "unhealthy"
		})
	}
}

// ReadyHandler serves the readiness report; 503 until every collaborator the
// agent needs is wired and healthy.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Ready(), func(status string) bool {
			return status == "ready"
		})
	}
}

// LivenessHandler answers 200 for as long as the process runs.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health.mu.RLock()
		uptime := time.Since(health.startedAt).String()
		health.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": uptime,
		})
	}
}

func writeReport(w http.ResponseWriter, report HealthReport, ok func(status string) bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok(report.Status) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}
