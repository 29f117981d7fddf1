package change

import (
	"context"
	"time"

	"github.com/anchorhq/anchor/pkg/network"
	"github.com/anchorhq/anchor/pkg/runtime"
	"github.com/anchorhq/anchor/pkg/volume"
)

// Target bundles the collaborators a change acts on: the container runtime,
// the volume service and the network manager.
type Target struct {
	Runtime runtime.Client
	Volumes volume.Service
	Network network.Manager
}

// Change is a single convergence action. Changes are plain value types:
// calculation produces them, equality is structural, and Run performs the
// side effect against the target's collaborators.
type Change interface {
	Run(ctx context.Context, target *Target) error
}

// NoOp signals a converged node. Sleep tells the convergence loop how long
// to wait before the next discovery cycle instead of busy-looping.
type NoOp struct {
	Sleep time.Duration
}

// Run does nothing; the loop interprets Sleep.
func (c NoOp) Run(ctx context.Context, target *Target) error {
	return nil
}
