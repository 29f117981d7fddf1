package control

import (
	"context"
	"sync"

	"github.com/anchorhq/anchor/pkg/model"
)

// Loopback is an in-process controller transport. It records every reported
// state and hands it back on request, serving both tests and standalone
// agents running without a remote controller.
type Loopback struct {
	mu       sync.Mutex
	reports  []model.NodeState
	failWith error
	closed   bool
}

// NewLoopback creates an in-process controller transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// ReportState records the reported state.
func (c *Loopback) ReportState(ctx context.Context, state model.NodeState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.reports = append(c.reports, state)
	return nil
}

// Reports returns a copy of every state reported so far.
func (c *Loopback) Reports() []model.NodeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.NodeState{}, c.reports...)
}

// FailWith makes subsequent ReportState calls return err; nil restores
// normal operation.
func (c *Loopback) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// Closed reports whether Close was called.
func (c *Loopback) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Loopback) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
