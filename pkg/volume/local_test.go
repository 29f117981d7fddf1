package volume

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *LocalService {
	t.Helper()
	service, err := NewLocalService(t.TempDir())
	require.NoError(t, err)
	return service
}

func TestLocalServiceCreateAndEnumerate(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	datasetID := uuid.New()
	size := int64(100 * 1024 * 1024)

	created, err := service.Create(ctx, Volume{DatasetID: datasetID, MaximumSize: &size})
	require.NoError(t, err)
	assert.DirExists(t, created.Path)

	volumes, err := service.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	assert.Equal(t, datasetID, volumes[0].DatasetID)
	require.NotNil(t, volumes[0].MaximumSize)
	assert.Equal(t, size, *volumes[0].MaximumSize)
}

func TestLocalServiceEnumerateIgnoresForeignDirectories(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	service, err := NewLocalService(base)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(base, "not-a-dataset"), 0755))

	volumes, err := service.Enumerate(ctx)
	require.NoError(t, err)
	assert.Empty(t, volumes)
}

func TestLocalServiceSetMaximumSize(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	datasetID := uuid.New()
	_, err := service.Create(ctx, Volume{DatasetID: datasetID})
	require.NoError(t, err)

	size := int64(200 * 1024 * 1024)
	resized, err := service.SetMaximumSize(ctx, datasetID, &size)
	require.NoError(t, err)
	require.NotNil(t, resized.MaximumSize)
	assert.Equal(t, size, *resized.MaximumSize)

	volumes, err := service.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	require.NotNil(t, volumes[0].MaximumSize)
	assert.Equal(t, size, *volumes[0].MaximumSize)
}

func TestLocalServiceSetMaximumSizeMissingVolume(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	_, err := service.SetMaximumSize(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrVolumeNotFound)
}

func TestLocalServiceDestroy(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	datasetID := uuid.New()
	_, err := service.Create(ctx, Volume{DatasetID: datasetID})
	require.NoError(t, err)

	require.NoError(t, service.Destroy(ctx, datasetID))

	volumes, err := service.Enumerate(ctx)
	require.NoError(t, err)
	assert.Empty(t, volumes)

	// Destroying again must not error.
	assert.NoError(t, service.Destroy(ctx, datasetID))
}

func TestLocalServiceWaitForVolume(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	datasetID := uuid.New()

	t.Run("returns once volume appears", func(t *testing.T) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			_, _ = service.Create(ctx, Volume{DatasetID: datasetID})
		}()

		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		volume, err := service.WaitForVolume(waitCtx, datasetID)
		require.NoError(t, err)
		assert.Equal(t, datasetID, volume.DatasetID)
	})

	t.Run("respects cancellation", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := service.WaitForVolume(waitCtx, uuid.New())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
