package deploy

import (
	"context"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/model"
)

// Composite runs several deployers as one. Discovery runs the deployers in
// order, feeding each the fragments merged so far, so the application
// deployer can attribute container mounts to the dataset deployer's freshly
// discovered manifestations. Calculation sequences each deployer's changes in
// the same order, which puts dataset changes ahead of application changes: a
// destination has its data before the consuming application starts.
type Composite struct {
	NodeUUID  uuid.UUID
	Hostname  string
	Deployers []Deployer
}

// DiscoverState merges every deployer's state fragment into one NodeState.
// Two deployers claiming the same aspect of node state is a programmer error
// and surfaces as a merge failure.
func (c *Composite) DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error) {
	merged := model.NodeState{UUID: c.NodeUUID, Hostname: c.Hostname}
	for _, deployer := range c.Deployers {
		fragment, err := deployer.DiscoverState(ctx, merged)
		if err != nil {
			return model.NodeState{}, err
		}
		merged, err = model.MergeNodeStates(merged, fragment)
		if err != nil {
			return model.NodeState{}, err
		}
	}
	return merged, nil
}

// CalculateChanges sequences each deployer's change tree. Converged deployers
// contribute nothing; if every deployer is converged the composite is NoOp
// with the longest requested sleep.
func (c *Composite) CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error) {
	changes := []change.Change{}
	sleep := DefaultSleep
	for _, deployer := range c.Deployers {
		calculated, err := deployer.CalculateChanges(ctx, configuration, cluster, local)
		if err != nil {
			return nil, err
		}
		if noop, ok := calculated.(change.NoOp); ok {
			if noop.Sleep > sleep {
				sleep = noop.Sleep
			}
			continue
		}
		changes = append(changes, calculated)
	}
	if len(changes) == 0 {
		return change.NoOp{Sleep: sleep}, nil
	}
	return change.Sequentially(changes...), nil
}
