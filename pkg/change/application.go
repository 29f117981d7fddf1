package change

import (
	"context"
	"fmt"

	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/runtime"
)

// StartApplication creates and starts a container unit for the application,
// translating its volume, port, environment, link and resource fields into
// runtime arguments. Fails with runtime.ErrAlreadyExists if a unit with the
// application's name exists.
type StartApplication struct {
	Application model.Application
	NodeState   model.NodeState
}

func (c StartApplication) Run(ctx context.Context, target *Target) error {
	app := c.Application

	environment := map[string]string{}
	for name, value := range app.Environment {
		environment[name] = value
	}
	for name, value := range model.RenderLinkEnvironment(c.NodeState.Hostname, app.Links) {
		environment[name] = value
	}

	var volumes []runtime.Volume
	if app.Volume != nil {
		path, ok := c.NodeState.Paths[app.Volume.DatasetID()]
		if !ok {
			return fmt.Errorf("no local path for dataset %s required by application %s",
				app.Volume.DatasetID(), app.Name)
		}
		volumes = append(volumes, runtime.Volume{
			NodePath:      path,
			ContainerPath: app.Volume.Mountpoint,
		})
	}

	unit := runtime.Unit{
		Name:        app.Name,
		Image:       app.Image.FullName(),
		Ports:       app.Ports,
		Environment: environment,
		Volumes:     volumes,
		MemoryLimit: app.MemoryLimit,
		CPUShares:   app.CPUShares,
		// Restart policies interact badly with converged volume moves;
		// units are always created with restarts disabled.
		RestartPolicy: model.RestartPolicy{Condition: model.RestartNever},
		CommandLine:   app.CommandLine,
	}
	if err := target.Runtime.Add(ctx, unit); err != nil {
		return err
	}
	logger := log.WithApplication(app.Name)
	logger.Debug().Str("image", unit.Image).Msg("application started")
	return nil
}

// StopApplication removes the application's container unit. Stopping an
// application that is not running is not an error.
type StopApplication struct {
	Application model.Application
}

func (c StopApplication) Run(ctx context.Context, target *Target) error {
	if err := target.Runtime.Remove(ctx, c.Application.Name); err != nil {
		return err
	}
	logger := log.WithApplication(c.Application.Name)
	logger.Debug().Msg("application stopped")
	return nil
}
