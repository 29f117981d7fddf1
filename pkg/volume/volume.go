package volume

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrVolumeNotFound is returned when an operation targets a dataset that has
// no locally-owned volume.
var ErrVolumeNotFound = errors.New("volume not found")

// Volume is a locally-owned copy of a dataset's data.
type Volume struct {
	DatasetID   uuid.UUID
	Path        string
	MaximumSize *int64
}

// Service is the volume/dataset capability the convergence core depends on.
// Implementations own the actual storage (a local pool directory, ZFS, a
// block device backend); the core only issues these requests.
type Service interface {
	// Create allocates a local volume for the dataset and returns it with
	// its mount path filled in.
	Create(ctx context.Context, volume Volume) (Volume, error)

	// Enumerate returns all locally-owned volumes with their paths and
	// configured sizes.
	Enumerate(ctx context.Context) ([]Volume, error)

	// Push replicates the volume's data to the destination host without
	// giving up local ownership.
	Push(ctx context.Context, datasetID uuid.UUID, destination string) error

	// Handoff pushes the volume's data to the destination host and then
	// relinquishes local ownership. This is a move: the local copy is gone
	// afterwards.
	Handoff(ctx context.Context, datasetID uuid.UUID, destination string) error

	// SetMaximumSize changes the size bound of the local volume.
	SetMaximumSize(ctx context.Context, datasetID uuid.UUID, size *int64) (Volume, error)

	// Destroy removes the local volume for the dataset.
	Destroy(ctx context.Context, datasetID uuid.UUID) error

	// WaitForVolume blocks until a volume for the dataset is locally
	// present, e.g. when awaiting an inbound handoff. It respects context
	// cancellation.
	WaitForVolume(ctx context.Context, datasetID uuid.UUID) (Volume, error)
}
