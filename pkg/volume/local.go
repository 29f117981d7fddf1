package volume

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/pkg/log"
)

const (
	// DefaultPoolPath is the base directory for the local volume pool.
	DefaultPoolPath = "/var/lib/anchor/volumes"

	// dataDir is the subdirectory holding the dataset's actual data; it is
	// what gets bind-mounted into containers and shipped to peers.
	dataDir = "data"

	metadataFile = "metadata.json"

	waitPollInterval = time.Second
)

// metadata is the on-disk sidecar describing a pool volume.
type metadata struct {
	MaximumSize *int64 `json:"maximum_size,omitempty"`
}

// LocalService implements Service with a directory-per-dataset pool on the
// local filesystem. Data transfer to peers shells out to rsync over ssh,
// with the peer expected to run the same pool layout.
type LocalService struct {
	basePath string
}

// NewLocalService creates a pool rooted at basePath (empty means
// DefaultPoolPath), creating the directory if needed.
func NewLocalService(basePath string) (*LocalService, error) {
	if basePath == "" {
		basePath = DefaultPoolPath
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create volume pool directory: %w", err)
	}
	return &LocalService{basePath: basePath}, nil
}

// Create allocates the dataset's pool directory and writes its metadata.
func (s *LocalService) Create(ctx context.Context, volume Volume) (Volume, error) {
	root := s.volumeRoot(volume.DatasetID)
	if err := os.MkdirAll(filepath.Join(root, dataDir), 0755); err != nil {
		return Volume{}, fmt.Errorf("failed to create volume directory: %w", err)
	}
	if err := s.writeMetadata(volume.DatasetID, metadata{MaximumSize: volume.MaximumSize}); err != nil {
		return Volume{}, err
	}
	volume.Path = filepath.Join(root, dataDir)
	return volume, nil
}

// Enumerate lists all volumes in the pool.
func (s *LocalService) Enumerate(ctx context.Context) ([]Volume, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume pool: %w", err)
	}

	volumes := []Volume{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		datasetID, err := uuid.Parse(entry.Name())
		if err != nil {
			// Not a pool volume.
			continue
		}
		meta, err := s.readMetadata(datasetID)
		if err != nil {
			return nil, err
		}
		volumes = append(volumes, Volume{
			DatasetID:   datasetID,
			Path:        filepath.Join(s.volumeRoot(datasetID), dataDir),
			MaximumSize: meta.MaximumSize,
		})
	}
	return volumes, nil
}

// Push replicates the volume directory to the same pool path on the
// destination host.
func (s *LocalService) Push(ctx context.Context, datasetID uuid.UUID, destination string) error {
	root := s.volumeRoot(datasetID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return fmt.Errorf("push %s: %w", datasetID, ErrVolumeNotFound)
	}

	target := fmt.Sprintf("%s:%s/", destination, root)
	cmd := exec.CommandContext(ctx, "rsync", "-a", "--delete", root+"/", target)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rsync to %s failed: %w (output: %s)", destination, err, string(output))
	}
	return nil
}

// Handoff pushes the volume to the destination and removes the local copy.
func (s *LocalService) Handoff(ctx context.Context, datasetID uuid.UUID, destination string) error {
	if err := s.Push(ctx, datasetID, destination); err != nil {
		return err
	}
	if err := os.RemoveAll(s.volumeRoot(datasetID)); err != nil {
		return fmt.Errorf("failed to relinquish volume %s: %w", datasetID, err)
	}
	logger := log.WithDataset(datasetID.String())
	logger.Info().Str("destination", destination).Msg("volume handed off")
	return nil
}

// SetMaximumSize updates the volume's size bound in its metadata.
func (s *LocalService) SetMaximumSize(ctx context.Context, datasetID uuid.UUID, size *int64) (Volume, error) {
	root := s.volumeRoot(datasetID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return Volume{}, fmt.Errorf("resize %s: %w", datasetID, ErrVolumeNotFound)
	}
	if err := s.writeMetadata(datasetID, metadata{MaximumSize: size}); err != nil {
		return Volume{}, err
	}
	return Volume{
		DatasetID:   datasetID,
		Path:        filepath.Join(root, dataDir),
		MaximumSize: size,
	}, nil
}

// Destroy removes the volume directory. Destroying a volume that does not
// exist is not an error.
func (s *LocalService) Destroy(ctx context.Context, datasetID uuid.UUID) error {
	root := s.volumeRoot(datasetID)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to destroy volume %s: %w", datasetID, err)
	}
	return nil
}

// WaitForVolume polls the pool until the dataset's volume appears.
func (s *LocalService) WaitForVolume(ctx context.Context, datasetID uuid.UUID) (Volume, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		root := s.volumeRoot(datasetID)
		if _, err := os.Stat(root); err == nil {
			meta, err := s.readMetadata(datasetID)
			if err != nil {
				return Volume{}, err
			}
			return Volume{
				DatasetID:   datasetID,
				Path:        filepath.Join(root, dataDir),
				MaximumSize: meta.MaximumSize,
			}, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Volume{}, ctx.Err()
		}
	}
}

func (s *LocalService) volumeRoot(datasetID uuid.UUID) string {
	return filepath.Join(s.basePath, datasetID.String())
}

func (s *LocalService) writeMetadata(datasetID uuid.UUID, meta metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode volume metadata: %w", err)
	}
	path := filepath.Join(s.volumeRoot(datasetID), metadataFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write volume metadata: %w", err)
	}
	return nil
}

func (s *LocalService) readMetadata(datasetID uuid.UUID) (metadata, error) {
	path := filepath.Join(s.volumeRoot(datasetID), metadataFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return metadata{}, nil
	}
	if err != nil {
		return metadata{}, fmt.Errorf("failed to read volume metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return metadata{}, fmt.Errorf("failed to decode volume metadata: %w", err)
	}
	return meta, nil
}
