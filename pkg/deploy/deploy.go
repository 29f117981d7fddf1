package deploy

import (
	"context"
	"time"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/model"
)

// DefaultSleep is how long a converged node waits before the next discovery
// cycle.
const DefaultSleep = 5 * time.Second

// Deployer discovers one domain of local node state and computes the changes
// needed to converge that domain toward the desired configuration.
//
// DiscoverState receives the state fragments discovered so far this cycle
// (earlier deployers in the composition run first) and returns its own
// fragment; the composition layer merges fragments with
// model.MergeNodeStates. CalculateChanges receives the fully merged local
// state together with the latest desired configuration and observed cluster
// state.
type Deployer interface {
	DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error)
	CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error)
}
