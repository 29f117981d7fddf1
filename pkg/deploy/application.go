package deploy

import (
	"context"
	"reflect"
	"sort"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/pkg/change"
	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/network"
	"github.com/anchorhq/anchor/pkg/runtime"
)

// ApplicationDeployer converges the applications running on this node. It
// does not touch volumes directly; it refuses to start an application whose
// required manifestation has not arrived yet and leaves the data movement to
// the dataset deployer.
type ApplicationDeployer struct {
	NodeUUID uuid.UUID
	Hostname string
	Runtime  runtime.Client
	Network  network.Manager
}

// DiscoverState lists running container units and reconstructs applications
// from them. It requires the manifestation fragment discovered earlier this
// cycle: without a known path-to-manifestation mapping the discovered units
// cannot be attributed to datasets, so application state is reported as
// unknown rather than guessed.
func (d *ApplicationDeployer) DiscoverState(ctx context.Context, local model.NodeState) (model.NodeState, error) {
	fragment := model.NodeState{UUID: d.NodeUUID, Hostname: d.Hostname}
	if !local.KnowsManifestations() {
		return fragment, nil
	}

	units, err := d.Runtime.List(ctx)
	if err != nil {
		return model.NodeState{}, err
	}

	pathToManifestation := make(map[string]model.Manifestation, len(local.Paths))
	for datasetID, path := range local.Paths {
		if manifestation, ok := local.Manifestations[datasetID]; ok {
			pathToManifestation[path] = manifestation
		}
	}

	applications := []model.Application{}
	for _, unit := range units {
		image, err := model.ParseDockerImage(unit.Image)
		if err != nil {
			// Not something this agent started; leave it alone.
			continue
		}

		environment, links := model.ParseEnvironment(unit.Environment)
		if len(environment) == 0 {
			environment = nil
		}

		var attached *model.AttachedVolume
		for _, mount := range unit.Volumes {
			manifestation, ok := pathToManifestation[mount.NodePath]
			if !ok {
				// Mounts not backed by a managed dataset are ordinary
				// bind mounts, not errors.
				continue
			}
			attached = &model.AttachedVolume{
				Manifestation: manifestation,
				Mountpoint:    mount.ContainerPath,
			}
		}

		applications = append(applications, model.Application{
			Name:          unit.Name,
			Image:         image,
			Ports:         unit.Ports,
			Volume:        attached,
			Environment:   environment,
			Links:         links,
			MemoryLimit:   unit.MemoryLimit,
			CPUShares:     unit.CPUShares,
			RestartPolicy: unit.RestartPolicy,
			Running:       unit.ActivationState == runtime.ActivationActive,
			CommandLine:   unit.CommandLine,
		})
	}

	fragment.Applications = applications
	return fragment, nil
}

// CalculateChanges diffs desired against current applications on this node
// and emits proxy, open-port, stop, start and restart changes.
func (d *ApplicationDeployer) CalculateChanges(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState, local model.NodeState) (change.Change, error) {
	if !local.KnowsApplications() {
		return change.NoOp{Sleep: DefaultSleep}, nil
	}

	var desiredApplications []model.Application
	if desiredNode, ok := configuration.Node(d.NodeUUID); ok {
		desiredApplications = desiredNode.Applications
	}

	phases := []change.Change{}

	proxyChange, err := d.proxyChange(ctx, configuration, cluster)
	if err != nil {
		return nil, err
	}
	if proxyChange != nil {
		phases = append(phases, proxyChange)
	}

	openPortChange, err := d.openPortChange(ctx, desiredApplications)
	if err != nil {
		return nil, err
	}
	if openPortChange != nil {
		phases = append(phases, openPortChange)
	}

	desiredByName := make(map[string]model.Application, len(desiredApplications))
	for _, app := range desiredApplications {
		desiredByName[app.Name] = app
	}
	currentByName := make(map[string]model.Application, len(local.Applications))
	for _, app := range local.Applications {
		currentByName[app.Name] = app
	}

	stops := []change.Change{}
	for _, name := range sortedNames(currentByName) {
		if _, desired := desiredByName[name]; !desired {
			stops = append(stops, change.StopApplication{Application: currentByName[name]})
		}
	}

	starts := []change.Change{}
	for _, name := range sortedNames(desiredByName) {
		desired := desiredByName[name]
		current, present := currentByName[name]
		if !present {
			if manifestationMissing(desired, local) {
				// The application's data has not arrived here yet.
				// Wait for the dataset deployer rather than starting
				// a container over an empty mountpoint.
				continue
			}
			starts = append(starts, change.StartApplication{Application: desired, NodeState: local})
			continue
		}
		if restartForApplicationChange(local, current, desired) {
			starts = append(starts, change.Sequentially(
				change.StopApplication{Application: current},
				change.StartApplication{Application: desired, NodeState: local},
			))
		}
	}

	if len(stops) > 0 {
		phases = append(phases, change.InParallel(stops...))
	}
	if len(starts) > 0 {
		phases = append(phases, change.InParallel(starts...))
	}

	if len(phases) == 0 {
		return change.NoOp{Sleep: DefaultSleep}, nil
	}
	return change.Sequentially(phases...), nil
}

// proxyChange computes the proxy set routing link traffic to applications on
// other nodes and returns a SetProxies change if it differs from what the
// network manager currently has. Peers whose current hostname is unknown are
// skipped; there is no safe address to route to.
func (d *ApplicationDeployer) proxyChange(ctx context.Context, configuration model.Deployment, cluster model.DeploymentState) (change.Change, error) {
	desired := []network.Proxy{}
	for _, node := range configuration.Nodes {
		if node.UUID == d.NodeUUID {
			continue
		}
		peer, known := cluster.Node(node.UUID)
		if !known || peer.Hostname == "" {
			continue
		}
		for _, app := range node.Applications {
			for _, port := range app.Ports {
				desired = append(desired, network.Proxy{IP: peer.Hostname, Port: port.ExternalPort})
			}
		}
	}

	current, err := d.Network.EnumerateProxies(ctx)
	if err != nil {
		return nil, err
	}
	if proxySetsEqual(desired, current) {
		return nil, nil
	}
	return change.SetProxies{Ports: desired}, nil
}

// openPortChange computes the externally exposed ports of applications
// desired on this node and returns an OpenPorts change if the firewall's
// current set differs.
func (d *ApplicationDeployer) openPortChange(ctx context.Context, desiredApplications []model.Application) (change.Change, error) {
	desired := []network.OpenPort{}
	for _, app := range desiredApplications {
		for _, port := range app.Ports {
			desired = append(desired, network.OpenPort{Port: port.ExternalPort})
		}
	}

	current, err := d.Network.EnumerateOpenPorts(ctx)
	if err != nil {
		return nil, err
	}
	if openPortSetsEqual(desired, current) {
		return nil, nil
	}
	return change.OpenPorts{Ports: desired}, nil
}

func manifestationMissing(app model.Application, local model.NodeState) bool {
	if app.Volume == nil {
		return false
	}
	_, present := local.Manifestations[app.Volume.DatasetID()]
	return !present
}

// restartForApplicationChange reports whether the current application must be
// stopped and recreated to match the desired one. Volume attachment and
// restart policy are compared separately from the remaining fields: dataset
// size or metadata drift is the dataset deployer's job and never forces a
// restart, while any observed restart policy other than "never" does, so the
// recreated unit comes back normalized.
func restartForApplicationChange(local model.NodeState, current, desired model.Application) bool {
	if !reflect.DeepEqual(comparableApplication(current), comparableApplication(desired)) {
		return true
	}
	if condition := current.RestartPolicy.Condition; condition != "" && condition != model.RestartNever {
		return true
	}
	return restartForVolumeChange(local, current.Volume, desired.Volume)
}

// restartForVolumeChange reports whether the volume attachment itself changed
// in a way that needs a restart. Attaching or detaching does; switching to a
// different dataset does only once that dataset's manifestation is locally
// present, otherwise the restart is deferred to a later cycle.
func restartForVolumeChange(local model.NodeState, current, desired *model.AttachedVolume) bool {
	switch {
	case current == nil && desired == nil:
		return false
	case current == nil || desired == nil:
		return true
	case current.DatasetID() == desired.DatasetID():
		return false
	}
	_, present := local.Manifestations[desired.DatasetID()]
	return present
}

// comparableApplication normalizes an application for change detection:
// volume and restart policy are blanked (compared separately), nil
// collections become empty and unordered ones are sorted, so a discovered
// application and its configured counterpart compare equal when they describe
// the same unit.
func comparableApplication(app model.Application) model.Application {
	app.Volume = nil
	app.RestartPolicy = model.RestartPolicy{Condition: model.RestartNever}

	if app.Environment == nil {
		app.Environment = map[string]string{}
	}
	if app.CommandLine == nil {
		app.CommandLine = []string{}
	}

	ports := append([]model.Port{}, app.Ports...)
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].InternalPort != ports[j].InternalPort {
			return ports[i].InternalPort < ports[j].InternalPort
		}
		return ports[i].ExternalPort < ports[j].ExternalPort
	})
	app.Ports = ports

	links := append([]model.Link{}, app.Links...)
	sort.Slice(links, func(i, j int) bool {
		if links[i].Alias != links[j].Alias {
			return links[i].Alias < links[j].Alias
		}
		return links[i].LocalPort < links[j].LocalPort
	})
	app.Links = links

	return app
}

func sortedNames(applications map[string]model.Application) []string {
	names := make([]string, 0, len(applications))
	for name := range applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func proxySetsEqual(a, b []network.Proxy) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[network.Proxy]struct{}, len(a))
	for _, proxy := range a {
		set[proxy] = struct{}{}
	}
	for _, proxy := range b {
		if _, ok := set[proxy]; !ok {
			return false
		}
	}
	return true
}

func openPortSetsEqual(a, b []network.OpenPort) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[network.OpenPort]struct{}, len(a))
	for _, openPort := range a {
		set[openPort] = struct{}{}
	}
	for _, openPort := range b {
		if _, ok := set[openPort]; !ok {
			return false
		}
	}
	return true
}
