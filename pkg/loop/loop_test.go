package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/control"
	"github.com/anchorhq/anchor/pkg/model"
)

// scriptedConverger serves canned changes in order, repeating the last one,
// and records every configuration it calculated against. An optional gate
// makes discovery block so tests can park the loop mid-cycle.
type scriptedConverger struct {
	mu      sync.Mutex
	local   model.NodeState
	changes []change.Change
	next    int
	seen    []model.Deployment
	entered chan struct{}
	gate    chan struct{}
}

func (c *scriptedConverger) DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	return c.local, nil
}

func (c *scriptedConverger) CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, configuration)
	calculated := c.changes[c.next]
	if c.next < len(c.changes)-1 {
		c.next++
	}
	return calculated, nil
}

func (c *scriptedConverger) configurations() []model.Deployment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Deployment{}, c.seen...)
}

type countingChange struct {
	runs *int32
	mu   *sync.Mutex
}

func (c countingChange) Run(ctx context.Context, target *change.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.runs++
	return nil
}

func configurationNamed(hostname string) model.Deployment {
	return model.Deployment{Nodes: []model.Node{{Hostname: hostname}}}
}

func TestLoopRunsCycleAndReportsState(t *testing.T) {
	var runs int32
	var mu sync.Mutex
	converger := &scriptedConverger{
		local: model.NodeState{Hostname: "node1.example.com"},
		changes: []change.Change{
			countingChange{runs: &runs, mu: &mu},
			change.NoOp{Sleep: time.Hour},
		},
	}
	client := control.NewLoopback()
	convergence := NewConvergenceLoop(converger, &change.Target{}, nil)
	convergence.Start()
	defer convergence.Shutdown()

	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("a")})

	// First cycle applies the change and immediately starts a second cycle,
	// which converges and parks the loop.
	require.Eventually(t, func() bool {
		return len(client.Reports()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, int32(1), runs)
	mu.Unlock()
	assert.Equal(t, "node1.example.com", client.Reports()[0].Hostname)
}

func TestLoopLatestUpdateWins(t *testing.T) {
	converger := &scriptedConverger{
		changes: []change.Change{change.NoOp{Sleep: time.Hour}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	client := control.NewLoopback()
	convergence := NewConvergenceLoop(converger, &change.Target{}, nil)
	convergence.Start()
	defer convergence.Shutdown()

	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("a")})
	<-converger.entered // discovery for "a" is in flight

	// Two more updates arrive while discovery runs; only the newest
	// survives the mailbox, and calculation must use it rather than the
	// pair the cycle started with.
	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("b")})
	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("c")})

	converger.gate <- struct{}{} // release discovery

	require.Eventually(t, func() bool {
		return len(converger.configurations()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	seen := converger.configurations()
	assert.Equal(t, "c", seen[0].Nodes[0].Hostname,
		"changes are calculated against the latest update, not the superseded one")
}

func TestLoopStopMidCycleFinishesCycle(t *testing.T) {
	converger := &scriptedConverger{
		changes: []change.Change{change.NoOp{Sleep: time.Hour}},
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	client := control.NewLoopback()
	convergence := NewConvergenceLoop(converger, &change.Target{}, nil)
	convergence.Start()
	defer convergence.Shutdown()

	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("a")})
	<-converger.entered // discovery for "a" is in flight
	convergence.Stop()
	converger.gate <- struct{}{}

	// The in-flight cycle still completes with the pair it started with;
	// the stop takes effect at the cycle boundary.
	require.Eventually(t, func() bool {
		return len(converger.configurations()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "a", converger.configurations()[0].Nodes[0].Hostname)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, converger.configurations(), 1, "no cycles once stopped")
}

func TestLoopStopReturnsToIdleAndRestarts(t *testing.T) {
	converger := &scriptedConverger{
		changes: []change.Change{change.NoOp{Sleep: time.Hour}},
	}
	client := control.NewLoopback()
	convergence := NewConvergenceLoop(converger, &change.Target{}, nil)
	convergence.Start()
	defer convergence.Shutdown()

	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("a")})
	require.Eventually(t, func() bool {
		return len(client.Reports()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Stop wakes the sleeping loop and parks it idle.
	convergence.Stop()
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, client.Reports(), 1, "no cycles while stopped")

	// A fresh update starts convergence again.
	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("b")})
	require.Eventually(t, func() bool {
		return len(client.Reports()) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoopKeepsConvergingWhenReportingFails(t *testing.T) {
	var runs int32
	var mu sync.Mutex
	converger := &scriptedConverger{
		changes: []change.Change{
			countingChange{runs: &runs, mu: &mu},
			change.NoOp{Sleep: time.Hour},
		},
	}
	client := control.NewLoopback()
	client.FailWith(assert.AnError)

	convergence := NewConvergenceLoop(converger, &change.Target{}, nil)
	convergence.Start()
	defer convergence.Shutdown()

	convergence.Deliver(StatusUpdate{Client: client, Configuration: configurationNamed("a")})

	// Local convergence proceeds even though every report fails.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, client.Reports())
}

func TestLoopShutdownClosesDone(t *testing.T) {
	convergence := NewConvergenceLoop(&scriptedConverger{
		changes: []change.Change{change.NoOp{Sleep: time.Hour}},
	}, &change.Target{}, nil)
	convergence.Start()
	convergence.Shutdown()

	select {
	case <-convergence.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop goroutine did not exit")
	}
}
