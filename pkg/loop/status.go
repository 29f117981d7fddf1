package loop

import (
	"sync"

	"github.com/anchorhq/anchor/pkg/control"
	"github.com/anchorhq/anchor/pkg/events"
	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/metrics"
	"github.com/anchorhq/anchor/pkg/model"
)

// Phase is the cluster status machine's connection state.
type Phase string

const (
	PhaseDisconnected        Phase = "disconnected"
	PhaseConnectedNoStatus   Phase = "connected_no_status"
	PhaseConnectedWithStatus Phase = "connected_with_status"
	PhaseShutdown            Phase = "shutdown"
)

// Loop is the convergence loop as seen from the cluster status machine.
type Loop interface {
	Deliver(StatusUpdate)
	Stop()
}

// ClusterStatus tracks controller connectivity and feeds the convergence
// loop with status updates, decoupling connection transitions from
// convergence logic. Inputs are processed one at a time.
//
// Convergence only starts once a connected controller has sent a status
// update, and is stopped on disconnect so the loop never keeps reporting to
// a dead connection. A disconnect before any update was forwarded needs no
// stop; nothing was started.
type ClusterStatus struct {
	mu     sync.Mutex
	phase  Phase
	client control.Client
	loop   Loop
	broker *events.Broker
}

// NewClusterStatus creates a cluster status machine feeding the given loop.
// The broker may be nil.
func NewClusterStatus(loop Loop, broker *events.Broker) *ClusterStatus {
	return &ClusterStatus{
		phase:  PhaseDisconnected,
		loop:   loop,
		broker: broker,
	}
}

// Phase returns the current connection phase.
func (s *ClusterStatus) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ClientConnected records a fresh controller connection. Convergence does
// not start yet; the first status update does that.
func (s *ClusterStatus) ClientConnected(client control.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseDisconnected {
		return
	}
	s.client = client
	s.phase = PhaseConnectedNoStatus
	metrics.ControllerConnected.Set(1)
	s.publish(events.EventControllerAttached, "controller connected")
	logger := log.WithComponent("status")
	logger.Info().Msg("controller connected")
}

// StatusUpdate forwards a fresh (configuration, state) pair to the
// convergence loop, paired with the current connection's transport handle.
func (s *ClusterStatus) StatusUpdate(configuration model.Deployment, state model.DeploymentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseConnectedNoStatus && s.phase != PhaseConnectedWithStatus {
		return
	}
	s.loop.Deliver(StatusUpdate{
		Client:        s.client,
		Configuration: configuration,
		State:         state,
	})
	s.phase = PhaseConnectedWithStatus
}

// ClientDisconnected records a lost controller connection and stops the
// convergence loop if it had been started.
func (s *ClusterStatus) ClientDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseShutdown || s.phase == PhaseDisconnected {
		return
	}
	if s.phase == PhaseConnectedWithStatus {
		s.loop.Stop()
	}
	s.client = nil
	s.phase = PhaseDisconnected
	metrics.ControllerConnected.Set(0)
	s.publish(events.EventControllerLost, "controller disconnected")
	logger := log.WithComponent("status")
	logger.Warn().Msg("controller disconnected")
}

// Shutdown disconnects the transport and stops the convergence loop if it
// had been started. All further inputs are ignored.
func (s *ClusterStatus) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseShutdown {
		return
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logger := log.WithComponent("status")
			logger.Warn().Err(err).Msg("failed to close controller connection")
		}
	}
	if s.phase == PhaseConnectedWithStatus {
		s.loop.Stop()
	}
	s.client = nil
	s.phase = PhaseShutdown
	metrics.ControllerConnected.Set(0)
}

func (s *ClusterStatus) publish(eventType events.EventType, message string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(events.New(eventType, message, nil))
}
