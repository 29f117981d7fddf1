// Package events provides a lightweight publish/subscribe broker for agent
// lifecycle events: convergence cycle progress, controller connectivity and
// state reporting.
package events
