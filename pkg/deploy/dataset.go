package deploy

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/volume"
)

// DatasetDeployer converges the dataset manifestations on this node: it
// creates, resizes, hands off and deletes local volumes according to the
// desired global dataset placement, respecting leases and datasets in use by
// running applications.
type DatasetDeployer struct {
	NodeUUID uuid.UUID
	Hostname string
	Volumes  volume.Service

	// now is swappable for lease expiry tests.
	now func() time.Time
}

func (d *DatasetDeployer) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// DiscoverState enumerates locally-owned volumes and reports each as a
// primary manifestation with its mount path. Applications are left unknown;
// that is the application deployer's fragment.
func (d *DatasetDeployer) DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error) {
	volumes, err := d.Volumes.Enumerate(ctx)
	if err != nil {
		return model.NodeState{}, err
	}

	manifestations := map[uuid.UUID]model.Manifestation{}
	paths := map[uuid.UUID]string{}
	for _, vol := range volumes {
		manifestations[vol.DatasetID] = model.Manifestation{
			Dataset: model.Dataset{
				DatasetID:   vol.DatasetID,
				MaximumSize: vol.MaximumSize,
			},
			Primary: true,
		}
		paths[vol.DatasetID] = vol.Path
	}

	return model.NodeState{
		UUID:           d.NodeUUID,
		Hostname:       d.Hostname,
		Manifestations: manifestations,
		Paths:          paths,
	}, nil
}

// CalculateChanges computes dataset lifecycle changes from the desired global
// dataset placement. Phases are strictly ordered: resizes before handoffs
// before creates before deletes, each phase internally parallel. Resizing
// before handing off means the size bound is correct before the data moves.
func (d *DatasetDeployer) CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error) {
	if !local.KnowsManifestations() {
		return change.NoOp{Sleep: DefaultSleep}, nil
	}

	// Datasets attached to running local applications must not be resized,
	// handed off or deleted this cycle; the application deployer stops the
	// application first and the dataset change proceeds on a later cycle.
	inUse := map[uuid.UUID]struct{}{}
	for _, app := range local.RunningApplications() {
		if app.Volume != nil {
			inUse[app.Volume.DatasetID()] = struct{}{}
		}
	}

	now := d.clock()
	blocked := func(datasetID uuid.UUID) bool {
		if _, used := inUse[datasetID]; used {
			return true
		}
		return configuration.Leases.IsHeldElsewhere(datasetID, d.NodeUUID, now)
	}

	// Manifestations on remote nodes, with an unknown node contributing
	// nothing. Treating ignorance as emptiness is known to misjudge merely
	// offline nodes; the accepted failure mode is a spurious create rather
	// than a refusal to make progress.
	manifestedElsewhere := map[uuid.UUID]struct{}{}
	for _, node := range cluster.Nodes {
		if node.UUID == d.NodeUUID {
			continue
		}
		for datasetID := range node.Manifestations {
			manifestedElsewhere[datasetID] = struct{}{}
		}
	}

	resizes := []change.Change{}
	handoffs := []change.Change{}
	creates := []change.Change{}
	deletes := []change.Change{}

	deleted := map[uuid.UUID]model.Dataset{}
	for _, node := range configuration.Nodes {
		for _, manifestation := range node.Manifestations {
			if manifestation.Dataset.Deleted {
				deleted[manifestation.DatasetID()] = manifestation.Dataset
			}
		}
	}

	// A dataset may be named in more than one node's desired manifestation
	// map; each dataset gets at most one resize and one handoff per cycle.
	resized := map[uuid.UUID]struct{}{}
	handedOff := map[uuid.UUID]struct{}{}
	for _, node := range configuration.Nodes {
		for _, manifestation := range node.Manifestations {
			desired := manifestation.Dataset
			datasetID := desired.DatasetID
			current, localCopy := local.Manifestations[datasetID]
			if desired.Deleted || !localCopy || blocked(datasetID) {
				continue
			}

			if _, done := resized[datasetID]; !done && !sizesEqual(desired.MaximumSize, current.Dataset.MaximumSize) {
				resized[datasetID] = struct{}{}
				resizes = append(resizes, change.ResizeDataset{Dataset: desired})
			}

			if node.UUID != d.NodeUUID {
				peer, known := cluster.Node(node.UUID)
				if !known || peer.Hostname == "" {
					// Destination address unknown; defer the handoff
					// until that node's state is discovered.
					continue
				}
				if _, done := handedOff[datasetID]; done {
					continue
				}
				handedOff[datasetID] = struct{}{}
				handoffs = append(handoffs, change.HandoffDataset{
					Dataset:  desired,
					Hostname: peer.Hostname,
				})
			}
		}
	}

	if desiredNode, ok := configuration.Node(d.NodeUUID); ok {
		for _, manifestation := range desiredNode.Manifestations {
			desired := manifestation.Dataset
			if desired.Deleted {
				continue
			}
			if _, localCopy := local.Manifestations[desired.DatasetID]; localCopy {
				continue
			}
			if _, remote := manifestedElsewhere[desired.DatasetID]; remote {
				// The data exists elsewhere; its owner hands it off.
				continue
			}
			if _, exists := cluster.NonManifestDatasets[desired.DatasetID]; exists {
				// The dataset exists without a manifestation anywhere.
				// Creating a fresh one would fork its identity.
				continue
			}
			creates = append(creates, change.CreateDataset{Dataset: desired})
		}
	}

	for datasetID, dataset := range deleted {
		if _, localCopy := local.Manifestations[datasetID]; !localCopy {
			continue
		}
		if blocked(datasetID) {
			continue
		}
		deletes = append(deletes, change.DeleteDataset{Dataset: dataset})
	}

	phases := []change.Change{}
	for _, phase := range [][]change.Change{resizes, handoffs, creates, deletes} {
		if len(phase) > 0 {
			sortByDataset(phase)
			phases = append(phases, change.InParallel(phase...))
		}
	}
	if len(phases) == 0 {
		return change.NoOp{Sleep: DefaultSleep}, nil
	}
	return change.Sequentially(phases...), nil
}

func sizesEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sortByDataset orders a phase deterministically so repeated calculations
// over the same inputs produce identical change trees.
func sortByDataset(changes []change.Change) {
	sort.Slice(changes, func(i, j int) bool {
		return datasetKey(changes[i]) < datasetKey(changes[j])
	})
}

func datasetKey(c change.Change) string {
	switch c := c.(type) {
	case change.ResizeDataset:
		return c.Dataset.DatasetID.String()
	case change.HandoffDataset:
		return c.Dataset.DatasetID.String()
	case change.PushDataset:
		return c.Dataset.DatasetID.String()
	case change.CreateDataset:
		return c.Dataset.DatasetID.String()
	case change.DeleteDataset:
		return c.Dataset.DatasetID.String()
	}
	return ""
}
