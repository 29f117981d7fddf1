package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/persist"
)

// deploymentFile is the YAML form of a desired cluster configuration.
type deploymentFile struct {
	Nodes []nodeSpec `yaml:"nodes"`
}

type nodeSpec struct {
	UUID         string    `yaml:"uuid"`
	Hostname     string    `yaml:"hostname"`
	Applications []appSpec `yaml:"applications"`
}

type appSpec struct {
	Name        string            `yaml:"name"`
	Image       string            `yaml:"image"`
	Ports       []portSpec        `yaml:"ports"`
	Volume      *volumeSpec       `yaml:"volume"`
	Environment map[string]string `yaml:"environment"`
	Links       []linkSpec        `yaml:"links"`
	MemoryLimit *int64            `yaml:"memory_limit"`
	CPUShares   *int64            `yaml:"cpu_shares"`
	CommandLine []string          `yaml:"command"`
}

type portSpec struct {
	Internal int `yaml:"internal"`
	External int `yaml:"external"`
}

type linkSpec struct {
	Alias      string `yaml:"alias"`
	LocalPort  int    `yaml:"local_port"`
	RemotePort int    `yaml:"remote_port"`
}

type volumeSpec struct {
	Dataset     string `yaml:"dataset"`
	Mountpoint  string `yaml:"mountpoint"`
	MaximumSize *int64 `yaml:"maximum_size"`
}

// loadDeployment reads a desired configuration file. Dataset names are
// translated to stable dataset IDs through the persistent store, so the same
// name maps to the same dataset across restarts. A node spec without a UUID
// must be the local node, identified by hostname.
func loadDeployment(path string, store persist.Store, localUUID uuid.UUID, localHostname string) (model.Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Deployment{}, fmt.Errorf("failed to read deployment file: %w", err)
	}
	return parseDeployment(data, store, localUUID, localHostname)
}

func parseDeployment(data []byte, store persist.Store, localUUID uuid.UUID, localHostname string) (model.Deployment, error) {
	var file deploymentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return model.Deployment{}, fmt.Errorf("failed to parse deployment file: %w", err)
	}

	deployment := model.Deployment{}
	for _, spec := range file.Nodes {
		node, err := parseNode(spec, store, localUUID, localHostname)
		if err != nil {
			return model.Deployment{}, err
		}
		deployment.Nodes = append(deployment.Nodes, node)
	}
	return deployment, nil
}

func parseNode(spec nodeSpec, store persist.Store, localUUID uuid.UUID, localHostname string) (model.Node, error) {
	if spec.Hostname == "" {
		return model.Node{}, fmt.Errorf("node hostname must not be empty")
	}

	nodeUUID := localUUID
	if spec.UUID != "" {
		parsed, err := uuid.Parse(spec.UUID)
		if err != nil {
			return model.Node{}, fmt.Errorf("invalid node uuid %q: %w", spec.UUID, err)
		}
		nodeUUID = parsed
	} else if spec.Hostname != localHostname {
		return model.Node{}, fmt.Errorf("node %q needs an explicit uuid", spec.Hostname)
	}

	node := model.Node{
		UUID:           nodeUUID,
		Hostname:       spec.Hostname,
		Manifestations: map[uuid.UUID]model.Manifestation{},
	}
	for _, app := range spec.Applications {
		application, err := parseApplication(app, store)
		if err != nil {
			return model.Node{}, fmt.Errorf("node %q: %w", spec.Hostname, err)
		}
		node.Applications = append(node.Applications, application)
		if application.Volume != nil {
			node.Manifestations[application.Volume.DatasetID()] = application.Volume.Manifestation
		}
	}
	return node, nil
}

func parseApplication(spec appSpec, store persist.Store) (model.Application, error) {
	if spec.Name == "" {
		return model.Application{}, fmt.Errorf("application name must not be empty")
	}
	image, err := model.ParseDockerImage(spec.Image)
	if err != nil {
		return model.Application{}, fmt.Errorf("application %q: %w", spec.Name, err)
	}

	application := model.Application{
		Name:          spec.Name,
		Image:         image,
		Environment:   spec.Environment,
		MemoryLimit:   spec.MemoryLimit,
		CPUShares:     spec.CPUShares,
		RestartPolicy: model.RestartPolicy{Condition: model.RestartNever},
		Running:       true,
		CommandLine:   spec.CommandLine,
	}
	for _, port := range spec.Ports {
		application.Ports = append(application.Ports, model.Port{
			InternalPort: port.Internal,
			ExternalPort: port.External,
		})
	}
	for _, link := range spec.Links {
		application.Links = append(application.Links, model.Link{
			Alias:      link.Alias,
			LocalPort:  link.LocalPort,
			RemotePort: link.RemotePort,
		})
	}

	if spec.Volume != nil {
		if spec.Volume.Dataset == "" || spec.Volume.Mountpoint == "" {
			return model.Application{}, fmt.Errorf("application %q: volume needs dataset and mountpoint", spec.Name)
		}
		datasetID, err := store.DatasetIDFor(spec.Volume.Dataset)
		if err != nil {
			return model.Application{}, fmt.Errorf("application %q: %w", spec.Name, err)
		}
		application.Volume = &model.AttachedVolume{
			Manifestation: model.Manifestation{
				Dataset: model.Dataset{
					DatasetID:   datasetID,
					MaximumSize: spec.Volume.MaximumSize,
					Metadata:    map[string]string{"name": spec.Volume.Dataset},
				},
				Primary: true,
			},
			Mountpoint: spec.Volume.Mountpoint,
		}
	}
	return application, nil
}
