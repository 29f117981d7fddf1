package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/anchorhq/anchor/pkg/log"
)

const (
	// DefaultNamespace is the containerd namespace for Anchor units.
	DefaultNamespace = "anchor"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// unitLabel stores the serialized Unit on the container so that List
	// can reconstruct the full unit without re-deriving it from the OCI
	// spec.
	unitLabel = "io.anchor.unit"

	stopTimeout = 10 * time.Second
)

// ContainerdClient implements Client against a containerd daemon.
type ContainerdClient struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdClient connects to containerd at socketPath (empty means the
// default socket).
func NewContainerdClient(socketPath string) (*ContainerdClient, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdClient{
		client:    client,
		namespace: DefaultNamespace,
	}, nil
}

// Close closes the containerd connection.
func (c *ContainerdClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Add pulls the unit's image, creates a container for it and starts it.
func (c *ContainerdClient) Add(ctx context.Context, unit Unit) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	if _, err := c.client.LoadContainer(ctx, unit.Name); err == nil {
		return ErrAlreadyExists
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to check for existing unit %s: %w", unit.Name, err)
	}

	image, err := c.client.Pull(ctx, unit.Image, containerd.WithPullUnpack)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", unit.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(environmentList(unit.Environment)),
	}
	if len(unit.CommandLine) > 0 {
		opts = append(opts, oci.WithProcessArgs(unit.CommandLine...))
	}
	if unit.MemoryLimit != nil {
		opts = append(opts, oci.WithMemoryLimit(uint64(*unit.MemoryLimit)))
	}
	if unit.CPUShares != nil {
		opts = append(opts, oci.WithCPUShares(uint64(*unit.CPUShares)))
	}
	if len(unit.Volumes) > 0 {
		mounts := make([]specs.Mount, 0, len(unit.Volumes))
		for _, volume := range unit.Volumes {
			mounts = append(mounts, specs.Mount{
				Source:      volume.NodePath,
				Destination: volume.ContainerPath,
				Type:        "bind",
				Options:     []string{"rbind", "rw"},
			})
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	labelData, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("failed to serialize unit %s: %w", unit.Name, err)
	}

	container, err := c.client.NewContainer(
		ctx,
		unit.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(unit.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{unitLabel: string(labelData)}),
	)
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create container for unit %s: %w", unit.Name, err)
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task for unit %s: %w", unit.Name, err)
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start unit %s: %w", unit.Name, err)
	}

	return nil
}

// Exists reports whether a unit with the given name is present.
func (c *ContainerdClient) Exists(ctx context.Context, name string) (bool, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	_, err := c.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load unit %s: %w", name, err)
	}
	return true, nil
}

// Remove stops the unit's task and deletes the container. Removing a unit
// that does not exist is not an error.
func (c *ContainerdClient) Remove(ctx context.Context, name string) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	container, err := c.client.LoadContainer(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load unit %s: %w", name, err)
	}

	if err := c.stopTask(ctx, container); err != nil {
		logger := log.WithComponent("runtime")
		logger.Warn().Err(err).
			Str("unit", name).Msg("failed to stop task before delete")
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete unit %s: %w", name, err)
	}
	return nil
}

// List returns all units in the Anchor namespace, reconstructed from the
// unit label with the activation state taken from the live task.
func (c *ContainerdClient) List(ctx context.Context) ([]Unit, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	containers, err := c.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	units := make([]Unit, 0, len(containers))
	for _, container := range containers {
		labels, err := container.Labels(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read labels for %s: %w", container.ID(), err)
		}
		data, ok := labels[unitLabel]
		if !ok {
			// Not one of ours.
			continue
		}
		var unit Unit
		if err := json.Unmarshal([]byte(data), &unit); err != nil {
			return nil, fmt.Errorf("failed to decode unit label for %s: %w", container.ID(), err)
		}

		unit.ActivationState = ActivationInactive
		if task, err := container.Task(ctx, nil); err == nil {
			status, err := task.Status(ctx)
			if err == nil && (status.Status == containerd.Running || status.Status == containerd.Paused) {
				unit.ActivationState = ActivationActive
			}
		}
		units = append(units, unit)
	}
	return units, nil
}

func (c *ContainerdClient) stopTask(ctx context.Context, container containerd.Container) error {
	task, err := container.Task(ctx, nil)
	if err != nil {
		// No task means the unit is not running.
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to signal task: %w", err)
	}

	statusC, err := task.Wait(stopCtx)
	if err != nil {
		return fmt.Errorf("failed to wait for task: %w", err)
	}

	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force kill task: %w", err)
		}
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

func environmentList(environment map[string]string) []string {
	env := make([]string, 0, len(environment))
	for key, value := range environment {
		env = append(env, key+"="+value)
	}
	return env
}
