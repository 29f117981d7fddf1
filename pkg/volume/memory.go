package volume

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transfer records a push or handoff issued against a MemoryService.
type Transfer struct {
	DatasetID   uuid.UUID
	Destination string
}

// MemoryService is an in-memory Service implementation for tests. It tracks
// volumes in a map and records pushes and handoffs instead of moving data.
type MemoryService struct {
	mu       sync.Mutex
	volumes  map[uuid.UUID]Volume
	Pushes   []Transfer
	Handoffs []Transfer
}

// NewMemoryService creates an empty in-memory volume service.
func NewMemoryService() *MemoryService {
	return &MemoryService{volumes: make(map[uuid.UUID]Volume)}
}

// AddVolume seeds the service with an existing volume.
func (s *MemoryService) AddVolume(volume Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume.Path == "" {
		volume.Path = "/anchor/" + volume.DatasetID.String()
	}
	s.volumes[volume.DatasetID] = volume
}

func (s *MemoryService) Create(ctx context.Context, volume Volume) (Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume.Path == "" {
		volume.Path = "/anchor/" + volume.DatasetID.String()
	}
	s.volumes[volume.DatasetID] = volume
	return volume, nil
}

func (s *MemoryService) Enumerate(ctx context.Context) ([]Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	volumes := make([]Volume, 0, len(s.volumes))
	for _, volume := range s.volumes {
		volumes = append(volumes, volume)
	}
	return volumes, nil
}

func (s *MemoryService) Push(ctx context.Context, datasetID uuid.UUID, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.volumes[datasetID]; !ok {
		return fmt.Errorf("push %s: %w", datasetID, ErrVolumeNotFound)
	}
	s.Pushes = append(s.Pushes, Transfer{DatasetID: datasetID, Destination: destination})
	return nil
}

func (s *MemoryService) Handoff(ctx context.Context, datasetID uuid.UUID, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.volumes[datasetID]; !ok {
		return fmt.Errorf("handoff %s: %w", datasetID, ErrVolumeNotFound)
	}
	delete(s.volumes, datasetID)
	s.Handoffs = append(s.Handoffs, Transfer{DatasetID: datasetID, Destination: destination})
	return nil
}

func (s *MemoryService) SetMaximumSize(ctx context.Context, datasetID uuid.UUID, size *int64) (Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	volume, ok := s.volumes[datasetID]
	if !ok {
		return Volume{}, fmt.Errorf("resize %s: %w", datasetID, ErrVolumeNotFound)
	}
	volume.MaximumSize = size
	s.volumes[datasetID] = volume
	return volume, nil
}

func (s *MemoryService) Destroy(ctx context.Context, datasetID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volumes, datasetID)
	return nil
}

func (s *MemoryService) WaitForVolume(ctx context.Context, datasetID uuid.UUID) (Volume, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		volume, ok := s.volumes[datasetID]
		s.mu.Unlock()
		if ok {
			return volume, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Volume{}, ctx.Err()
		}
	}
}
