// Package metrics exposes Prometheus metrics for the convergence loop and
// the local application/volume inventory, plus HTTP health, readiness and
// liveness handlers for the agent.
package metrics
