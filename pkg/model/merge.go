package model

import "fmt"

// MergeNodeStates combines partial NodeState fragments produced by
// independently running deployers into one NodeState. Each fragment
// contributes the fields it knows; nil fields are skipped. Two fragments
// both claiming knowledge of the same field is a programmer error (each
// deployer owns a disjoint slice of node state) and is reported rather than
// silently resolved.
func MergeNodeStates(fragments ...NodeState) (NodeState, error) {
	if len(fragments) == 0 {
		return NodeState{}, fmt.Errorf("no node state fragments to merge")
	}

	merged := NodeState{UUID: fragments[0].UUID, Hostname: fragments[0].Hostname}
	for _, fragment := range fragments {
		if fragment.UUID != merged.UUID {
			return NodeState{}, fmt.Errorf(
				"cannot merge state for different nodes: %s vs %s",
				merged.UUID, fragment.UUID)
		}
		if fragment.Hostname != merged.Hostname {
			return NodeState{}, fmt.Errorf(
				"cannot merge state with conflicting hostnames: %q vs %q",
				merged.Hostname, fragment.Hostname)
		}

		if fragment.Applications != nil {
			if merged.Applications != nil {
				return NodeState{}, fmt.Errorf("both fragments define applications for node %s", merged.UUID)
			}
			merged.Applications = fragment.Applications
		}
		if fragment.Manifestations != nil {
			if merged.Manifestations != nil {
				return NodeState{}, fmt.Errorf("both fragments define manifestations for node %s", merged.UUID)
			}
			merged.Manifestations = fragment.Manifestations
		}
		if fragment.Paths != nil {
			if merged.Paths != nil {
				return NodeState{}, fmt.Errorf("both fragments define paths for node %s", merged.UUID)
			}
			merged.Paths = fragment.Paths
		}
		if fragment.Devices != nil {
			if merged.Devices != nil {
				return NodeState{}, fmt.Errorf("both fragments define devices for node %s", merged.UUID)
			}
			merged.Devices = fragment.Devices
		}
		if fragment.UsedPorts != nil {
			if merged.UsedPorts != nil {
				return NodeState{}, fmt.Errorf("both fragments define used ports for node %s", merged.UUID)
			}
			merged.UsedPorts = fragment.UsedPorts
		}
	}

	return merged, nil
}
