package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DockerImage identifies a container image by repository and tag.
type DockerImage struct {
	Repository string
	Tag        string
}

// NewDockerImage builds an image reference. The repository must not be empty;
// an empty tag defaults to "latest".
func NewDockerImage(repository, tag string) (DockerImage, error) {
	if repository == "" {
		return DockerImage{}, fmt.Errorf("image repository must not be empty")
	}
	if tag == "" {
		tag = "latest"
	}
	return DockerImage{Repository: repository, Tag: tag}, nil
}

// ParseDockerImage parses a combined "repository:tag" reference. A missing
// tag defaults to "latest".
func ParseDockerImage(name string) (DockerImage, error) {
	repository, tag := name, ""
	if i := strings.LastIndex(name, ":"); i >= 0 {
		repository, tag = name[:i], name[i+1:]
	}
	return NewDockerImage(repository, tag)
}

// FullName returns the combined "repository:tag" form.
func (i DockerImage) FullName() string {
	return i.Repository + ":" + i.Tag
}

// Port maps a port inside a container to a port exposed on the node.
type Port struct {
	InternalPort int
	ExternalPort int
}

// Link wires one application to another through environment variables. An
// application connecting to LocalPort is routed to the remote application's
// externally exposed RemotePort.
type Link struct {
	LocalPort  int
	RemotePort int
	Alias      string
}

// RestartCondition defines when a stopped container is restarted.
type RestartCondition string

const (
	RestartNever     RestartCondition = "never"
	RestartAlways    RestartCondition = "always"
	RestartOnFailure RestartCondition = "on-failure"
)

// RestartPolicy defines container restart behavior. MaximumRetryCount only
// applies to the on-failure condition; nil means unbounded.
type RestartPolicy struct {
	Condition         RestartCondition
	MaximumRetryCount *int
}

// Dataset is a named unit of data that can be manifested on nodes. Identity
// is DatasetID alone: two values with the same ID but different Deleted or
// MaximumSize fields describe the same dataset in different desired states.
type Dataset struct {
	DatasetID   uuid.UUID
	MaximumSize *int64
	Metadata    map[string]string
	Deleted     bool
}

// WithDeleted returns a copy of the dataset with the deletion flag changed.
func (d Dataset) WithDeleted(deleted bool) Dataset {
	d.Deleted = deleted
	return d
}

// WithMaximumSize returns a copy of the dataset with a new size bound.
func (d Dataset) WithMaximumSize(size *int64) Dataset {
	d.MaximumSize = size
	return d
}

// Manifestation is a copy of a dataset materialized on a particular node.
type Manifestation struct {
	Dataset Dataset
	Primary bool
}

// DatasetID proxies the underlying dataset's identity.
func (m Manifestation) DatasetID() uuid.UUID {
	return m.Dataset.DatasetID
}

// AttachedVolume binds a manifestation into an application's filesystem.
type AttachedVolume struct {
	Manifestation Manifestation
	Mountpoint    string
}

// DatasetID proxies the attached manifestation's dataset identity.
func (v AttachedVolume) DatasetID() uuid.UUID {
	return v.Manifestation.DatasetID()
}

// Application describes one containerized workload. Name is unique within a
// node's application set.
type Application struct {
	Name          string
	Image         DockerImage
	Ports         []Port
	Volume        *AttachedVolume
	Environment   map[string]string
	Links         []Link
	MemoryLimit   *int64
	CPUShares     *int64
	RestartPolicy RestartPolicy
	Running       bool
	CommandLine   []string
}

// WithRunning returns a copy of the application with the running flag changed.
func (a Application) WithRunning(running bool) Application {
	a.Running = running
	return a
}

// WithVolume returns a copy of the application with a different attached
// volume (nil detaches).
func (a Application) WithVolume(volume *AttachedVolume) Application {
	a.Volume = volume
	return a
}

// Node is the desired configuration for a single node: which applications
// should run there and which dataset manifestations should exist there.
type Node struct {
	UUID           uuid.UUID
	Hostname       string
	Applications   []Application
	Manifestations map[uuid.UUID]Manifestation
}

// Lease grants one node exclusive rights to mutate a dataset. A nil Expires
// never expires.
type Lease struct {
	NodeUUID uuid.UUID
	Expires  *time.Time
}

// Leases maps dataset IDs to their lease holders.
type Leases map[uuid.UUID]Lease

// IsHeldElsewhere reports whether the dataset is actively leased to a node
// other than the given one. Expired leases are treated as released.
func (l Leases) IsHeldElsewhere(datasetID, nodeUUID uuid.UUID, now time.Time) bool {
	lease, ok := l[datasetID]
	if !ok {
		return false
	}
	if lease.Expires != nil && !lease.Expires.After(now) {
		return false
	}
	return lease.NodeUUID != nodeUUID
}

// Deployment is the desired configuration for the whole cluster.
type Deployment struct {
	Nodes  []Node
	Leases Leases
}

// Node returns the desired configuration for the given node UUID.
func (d Deployment) Node(nodeUUID uuid.UUID) (Node, bool) {
	for _, node := range d.Nodes {
		if node.UUID == nodeUUID {
			return node, true
		}
	}
	return Node{}, false
}

// NodeState is the observed state of a single node. Nil maps and slices mean
// the corresponding aspect of the node is unknown (discovery has not covered
// it, or could not do so safely); discovery always produces non-nil, possibly
// empty, values for the aspects it does know. The distinction matters: acting
// on "unknown" as if it were "empty" produces wrong convergence actions.
type NodeState struct {
	UUID           uuid.UUID
	Hostname       string
	Applications   []Application
	Manifestations map[uuid.UUID]Manifestation
	Paths          map[uuid.UUID]string
	Devices        map[uuid.UUID]string
	UsedPorts      []int
}

// KnowsApplications reports whether application state was discovered.
func (ns NodeState) KnowsApplications() bool {
	return ns.Applications != nil
}

// KnowsManifestations reports whether dataset manifestations were discovered.
func (ns NodeState) KnowsManifestations() bool {
	return ns.Manifestations != nil
}

// RunningApplications returns the subset of discovered applications that are
// currently running. Returns nil if application state is unknown.
func (ns NodeState) RunningApplications() []Application {
	if ns.Applications == nil {
		return nil
	}
	running := []Application{}
	for _, app := range ns.Applications {
		if app.Running {
			running = append(running, app)
		}
	}
	return running
}

// DeploymentState is the observed state of the whole cluster.
// NonManifestDatasets holds datasets known to exist somewhere but with no
// manifestation discovered on any node yet.
type DeploymentState struct {
	Nodes               []NodeState
	NonManifestDatasets map[uuid.UUID]Dataset
}

// Node returns the observed state for the given node UUID.
func (s DeploymentState) Node(nodeUUID uuid.UUID) (NodeState, bool) {
	for _, node := range s.Nodes {
		if node.UUID == nodeUUID {
			return node, true
		}
	}
	return NodeState{}, false
}

// UpdateNode returns a copy of the deployment state with the given node's
// state replaced (or appended if previously unseen).
func (s DeploymentState) UpdateNode(update NodeState) DeploymentState {
	nodes := make([]NodeState, 0, len(s.Nodes)+1)
	replaced := false
	for _, node := range s.Nodes {
		if node.UUID == update.UUID {
			nodes = append(nodes, update)
			replaced = true
		} else {
			nodes = append(nodes, node)
		}
	}
	if !replaced {
		nodes = append(nodes, update)
	}
	return DeploymentState{Nodes: nodes, NonManifestDatasets: s.NonManifestDatasets}
}
