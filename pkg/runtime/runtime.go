package runtime

import (
	"context"
	"errors"

	"github.com/anchorhq/anchor/pkg/model"
)

// ErrAlreadyExists is returned by Add when a unit with the same name exists.
var ErrAlreadyExists = errors.New("unit already exists")

// Activation states reported for units.
const (
	ActivationActive   = "active"
	ActivationInactive = "inactive"
)

// Volume is a host path bind-mounted into a unit's filesystem.
type Volume struct {
	NodePath      string
	ContainerPath string
}

// Unit describes a container unit as the runtime sees it. It mirrors the
// fields of model.Application plus the runtime's own activation state.
type Unit struct {
	Name            string
	ActivationState string
	Image           string
	Ports           []model.Port
	Environment     map[string]string
	Volumes         []Volume
	MemoryLimit     *int64
	CPUShares       *int64
	RestartPolicy   model.RestartPolicy
	CommandLine     []string
}

// Client is the container runtime capability the convergence core depends
// on. Implementations wrap an actual runtime (containerd) or an in-memory
// fake for tests.
type Client interface {
	// Add creates and starts a unit. Returns ErrAlreadyExists if a unit
	// with the same name is already present.
	Add(ctx context.Context, unit Unit) error

	// Exists reports whether a unit with the given name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Remove stops and removes the named unit. Removing a unit that does
	// not exist is not an error.
	Remove(ctx context.Context, name string) error

	// List returns all units managed by this runtime.
	List(ctx context.Context) ([]Unit, error)
}
