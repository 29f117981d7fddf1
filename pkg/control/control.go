package control

import (
	"context"

	"github.com/anchorhq/anchor/pkg/model"
)

// Client is the controller transport capability. The agent reports its
// discovered node state through it; the controller pushes fresh
// (configuration, cluster state) pairs back through the cluster status
// machinery that owns the connection.
type Client interface {
	// ReportState delivers this node's freshly discovered state to the
	// controller.
	ReportState(ctx context.Context, state model.NodeState) error

	Close() error
}
