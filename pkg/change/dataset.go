package change

import (
	"context"

	"github.com/anchorhq/anchor/pkg/log"
	"github.com/anchorhq/anchor/pkg/model"
	"github.com/anchorhq/anchor/pkg/volume"
)

// CreateDataset allocates a local volume backing the dataset.
type CreateDataset struct {
	Dataset model.Dataset
}

func (c CreateDataset) Run(ctx context.Context, target *Target) error {
	_, err := target.Volumes.Create(ctx, volume.Volume{
		DatasetID:   c.Dataset.DatasetID,
		MaximumSize: c.Dataset.MaximumSize,
	})
	return err
}

// ResizeDataset changes the size bound of the dataset's local volume.
type ResizeDataset struct {
	Dataset model.Dataset
}

func (c ResizeDataset) Run(ctx context.Context, target *Target) error {
	_, err := target.Volumes.SetMaximumSize(ctx, c.Dataset.DatasetID, c.Dataset.MaximumSize)
	return err
}

// HandoffDataset pushes the dataset's data to the destination host and then
// relinquishes local ownership. This is a move, not a copy.
type HandoffDataset struct {
	Dataset  model.Dataset
	Hostname string
}

func (c HandoffDataset) Run(ctx context.Context, target *Target) error {
	return target.Volumes.Handoff(ctx, c.Dataset.DatasetID, c.Hostname)
}

// PushDataset replicates the dataset's data to the destination host without
// relinquishing ownership, pre-seeding it ahead of a later handoff.
type PushDataset struct {
	Dataset  model.Dataset
	Hostname string
}

func (c PushDataset) Run(ctx context.Context, target *Target) error {
	return target.Volumes.Push(ctx, c.Dataset.DatasetID, c.Hostname)
}

// DeleteDataset destroys all locally-owned copies of the dataset.
// Deletion is best-effort per copy: a failure on one copy is logged but does
// not abort deletion of the others, and does not fail the overall action.
type DeleteDataset struct {
	Dataset model.Dataset
}

func (c DeleteDataset) Run(ctx context.Context, target *Target) error {
	volumes, err := target.Volumes.Enumerate(ctx)
	if err != nil {
		return err
	}

	logger := log.WithDataset(c.Dataset.DatasetID.String())
	for _, vol := range volumes {
		if vol.DatasetID != c.Dataset.DatasetID {
			continue
		}
		if err := target.Volumes.Destroy(ctx, vol.DatasetID); err != nil {
			logger.Error().Err(err).Msg("failed to destroy dataset copy")
		}
	}
	return nil
}
