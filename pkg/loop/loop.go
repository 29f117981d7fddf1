package loop

import (
	"context"
	"sync"
	"time"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/control"
	"github.com/anchorhq/anchor/pkg/events"
	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/metrics"
	"github.com/anchorhq/anchor/pkg/model"
)

// failureSleep is the pause after a failed discovery or calculation, long
// enough to avoid hot-looping against a persistently broken collaborator.
const failureSleep = 5 * time.Second

// Converger is what the loop drives each cycle: state discovery and change
// calculation.
type Converger interface {
	DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error)
	CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error)
}

// StatusUpdate is a fresh desired-configuration and cluster-state pair,
// paired with the transport handle results are reported back on.
type StatusUpdate struct {
	Client        control.Client
	Configuration model.Deployment
	State         model.DeploymentState
}

// input is one mailbox message: a status update, or a stop when update is
// nil.
type input struct {
	update *StatusUpdate
}

// ConvergenceLoop repeatedly discovers local state, reports it to the
// controller, calculates changes against the latest status update and runs
// them. Inputs go through a capacity-one mailbox with latest-wins semantics:
// a newer update supersedes an unprocessed older one but never interrupts a
// cycle already in flight. Stop takes effect at the next cycle boundary and
// returns the loop to idle; a later update starts it again.
type ConvergenceLoop struct {
	converger Converger
	target    *change.Target
	broker    *events.Broker

	inputs       chan input
	shutdownCh   chan struct{}
	done         chan struct{}
	startOnce    sync.Once
	shutdownOnce sync.Once
}

// NewConvergenceLoop creates a convergence loop. The broker may be nil if no
// event stream is wanted.
func NewConvergenceLoop(converger Converger, target *change.Target, broker *events.Broker) *ConvergenceLoop {
	return &ConvergenceLoop{
		converger:  converger,
		target:     target,
		broker:     broker,
		inputs:     make(chan input, 1),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the loop goroutine. The loop stays idle until the first
// status update arrives.
func (l *ConvergenceLoop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Deliver hands the loop a fresh status update, replacing any update it has
// not picked up yet.
func (l *ConvergenceLoop) Deliver(update StatusUpdate) {
	l.put(input{update: &update})
}

// Stop asks the loop to return to idle. An in-flight cycle always finishes
// first; there is no mid-action cancellation.
func (l *ConvergenceLoop) Stop() {
	l.put(input{})
}

// Shutdown terminates the loop goroutine for good.
func (l *ConvergenceLoop) Shutdown() {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)
	})
}

// Done is closed once the loop goroutine has exited.
func (l *ConvergenceLoop) Done() <-chan struct{} {
	return l.done
}

// put delivers to the capacity-one mailbox, evicting an unprocessed message
// so the newest input always wins.
func (l *ConvergenceLoop) put(in input) {
	for {
		select {
		case l.inputs <- in:
			return
		default:
			select {
			case <-l.inputs:
			default:
			}
		}
	}
}

func (l *ConvergenceLoop) run() {
	defer close(l.done)
	ctx := context.Background()

	var latest *StatusUpdate
	for {
		if latest == nil {
			select {
			case in := <-l.inputs:
				latest = in.update
			case <-l.shutdownCh:
				return
			}
			continue
		}

		var sleep time.Duration
		sleep, latest = l.cycle(ctx, *latest)

		// Pick up anything that arrived after the cycle's own mailbox
		// check; a stop delivered late in the cycle is honored here.
		select {
		case in := <-l.inputs:
			latest = in.update
			continue
		case <-l.shutdownCh:
			return
		default:
		}

		if latest == nil {
			continue
		}

		if sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case in := <-l.inputs:
				timer.Stop()
				latest = in.update
			case <-l.shutdownCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// cycle runs one discover/report/calculate/apply pass. It returns how long to
// sleep before the next one (zero means start immediately) and the status
// update the loop should carry forward: the pair the cycle actually
// calculated against, or nil when a stop arrived mid-cycle.
func (l *ConvergenceLoop) cycle(ctx context.Context, update StatusUpdate) (time.Duration, *StatusUpdate) {
	logger := log.WithComponent("convergence")
	timer := metrics.NewTimer()
	l.publish(events.EventCycleStarted, "convergence cycle started", nil)

	local, err := l.converger.DiscoverState(ctx, model.NodeState{})
	if err != nil {
		logger.Error().Err(err).Msg("state discovery failed")
		l.observeCycle("discovery_failed")
		l.publish(events.EventCycleFailed, "state discovery failed", nil)
		return failureSleep, &update
	}

	if err := update.Client.ReportState(ctx, local); err != nil {
		// The controller will catch up on the next cycle; local
		// convergence continues regardless.
		logger.Warn().Err(err).Msg("failed to report state to controller")
		metrics.StateReportsFailed.Inc()
	} else {
		l.publish(events.EventStateReported, "node state reported", nil)
	}

	// Discovery can take a while; an update received in the meantime
	// supersedes the pair this cycle started with, so changes are always
	// calculated against the newest one. A stop still lets the cycle
	// finish and takes effect at the boundary.
	next := &update
	select {
	case in := <-l.inputs:
		if in.update != nil {
			update = *in.update
		}
		next = in.update
	default:
	}

	cluster := update.State.UpdateNode(local)
	calculated, err := l.converger.CalculateChanges(ctx, update.Configuration, cluster, local)
	if err != nil {
		logger.Error().Err(err).Msg("change calculation failed")
		l.observeCycle("calculation_failed")
		l.publish(events.EventCycleFailed, "change calculation failed", nil)
		return failureSleep, next
	}

	if noop, ok := calculated.(change.NoOp); ok {
		logger.Debug().Dur("sleep", noop.Sleep).Msg("node converged")
		l.observeCycle("converged")
		timer.ObserveDuration(metrics.ConvergenceCycleDuration)
		l.publish(events.EventConverged, "node converged", nil)
		return noop.Sleep, next
	}

	if err := calculated.Run(ctx, l.target); err != nil {
		logger.Error().Err(err).Msg("change application failed")
		l.observeCycle("changes_failed")
		metrics.ChangesFailed.Inc()
		l.publish(events.EventCycleFailed, "change application failed", nil)
	} else {
		l.observeCycle("changed")
		metrics.ChangesApplied.Inc()
		l.publish(events.EventCycleCompleted, "changes applied", nil)
	}
	timer.ObserveDuration(metrics.ConvergenceCycleDuration)
	return 0, next
}

func (l *ConvergenceLoop) observeCycle(outcome string) {
	metrics.ConvergenceCycles.WithLabelValues(outcome).Inc()
	metrics.ObserveCycle(outcome)
}

func (l *ConvergenceLoop) publish(eventType events.EventType, message string, metadata map[string]string) {
	if l.broker == nil {
		return
	}
	l.broker.Publish(events.New(eventType, message, metadata))
}
