package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDockerImage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DockerImage
		wantErr  bool
	}{
		{
			name:     "repository and tag",
			input:    "acme/postgres:9.4",
			expected: DockerImage{Repository: "acme/postgres", Tag: "9.4"},
		},
		{
			name:     "missing tag defaults to latest",
			input:    "nginx",
			expected: DockerImage{Repository: "nginx", Tag: "latest"},
		},
		{
			name:     "trailing colon defaults to latest",
			input:    "nginx:",
			expected: DockerImage{Repository: "nginx", Tag: "latest"},
		},
		{
			name:    "empty repository",
			input:   ":1.0",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			image, err := ParseDockerImage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, image)
		})
	}
}

func TestDockerImageFullName(t *testing.T) {
	image, err := NewDockerImage("nginx", "1.25")
	require.NoError(t, err)
	assert.Equal(t, "nginx:1.25", image.FullName())
}

func TestDatasetWithHelpers(t *testing.T) {
	datasetID := uuid.New()
	size := int64(100 * 1024 * 1024)
	dataset := Dataset{DatasetID: datasetID, Metadata: map[string]string{"name": "db"}}

	deleted := dataset.WithDeleted(true)
	assert.False(t, dataset.Deleted, "original must not change")
	assert.True(t, deleted.Deleted)
	assert.Equal(t, datasetID, deleted.DatasetID)

	resized := dataset.WithMaximumSize(&size)
	assert.Nil(t, dataset.MaximumSize, "original must not change")
	require.NotNil(t, resized.MaximumSize)
	assert.Equal(t, size, *resized.MaximumSize)
}

func TestManifestationDatasetID(t *testing.T) {
	datasetID := uuid.New()
	manifestation := Manifestation{Dataset: Dataset{DatasetID: datasetID}, Primary: true}
	assert.Equal(t, datasetID, manifestation.DatasetID())

	volume := AttachedVolume{Manifestation: manifestation, Mountpoint: "/var/lib/data"}
	assert.Equal(t, datasetID, volume.DatasetID())
}

func TestLeasesIsHeldElsewhere(t *testing.T) {
	datasetID := uuid.New()
	holder := uuid.New()
	other := uuid.New()
	now := time.Now()
	expired := now.Add(-time.Minute)
	active := now.Add(time.Hour)

	tests := []struct {
		name     string
		leases   Leases
		node     uuid.UUID
		expected bool
	}{
		{
			name:     "no lease",
			leases:   Leases{},
			node:     other,
			expected: false,
		},
		{
			name:     "held by this node",
			leases:   Leases{datasetID: {NodeUUID: holder}},
			node:     holder,
			expected: false,
		},
		{
			name:     "held by another node",
			leases:   Leases{datasetID: {NodeUUID: holder}},
			node:     other,
			expected: true,
		},
		{
			name:     "expired lease is released",
			leases:   Leases{datasetID: {NodeUUID: holder, Expires: &expired}},
			node:     other,
			expected: false,
		},
		{
			name:     "active lease with expiry",
			leases:   Leases{datasetID: {NodeUUID: holder, Expires: &active}},
			node:     other,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.leases.IsHeldElsewhere(datasetID, tt.node, now))
		})
	}
}

func TestNodeStateKnowledge(t *testing.T) {
	unknown := NodeState{UUID: uuid.New()}
	assert.False(t, unknown.KnowsApplications())
	assert.False(t, unknown.KnowsManifestations())
	assert.Nil(t, unknown.RunningApplications())

	known := NodeState{
		UUID:           uuid.New(),
		Applications:   []Application{},
		Manifestations: map[uuid.UUID]Manifestation{},
	}
	assert.True(t, known.KnowsApplications())
	assert.True(t, known.KnowsManifestations())
	assert.Empty(t, known.RunningApplications())
	assert.NotNil(t, known.RunningApplications(), "known-empty stays known")
}

func TestRunningApplications(t *testing.T) {
	state := NodeState{
		Applications: []Application{
			{Name: "web", Running: true},
			{Name: "db", Running: false},
		},
	}
	running := state.RunningApplications()
	require.Len(t, running, 1)
	assert.Equal(t, "web", running[0].Name)
}

func TestDeploymentStateUpdateNode(t *testing.T) {
	nodeA := NodeState{UUID: uuid.New(), Hostname: "node-a"}
	nodeB := NodeState{UUID: uuid.New(), Hostname: "node-b"}
	state := DeploymentState{Nodes: []NodeState{nodeA}}

	updated := state.UpdateNode(nodeB)
	assert.Len(t, state.Nodes, 1, "original must not change")
	assert.Len(t, updated.Nodes, 2)

	replacement := NodeState{UUID: nodeA.UUID, Hostname: "node-a", Applications: []Application{}}
	updated = updated.UpdateNode(replacement)
	assert.Len(t, updated.Nodes, 2)
	got, ok := updated.Node(nodeA.UUID)
	require.True(t, ok)
	assert.True(t, got.KnowsApplications())
}

func TestMergeNodeStates(t *testing.T) {
	nodeUUID := uuid.New()

	appFragment := NodeState{
		UUID:         nodeUUID,
		Hostname:     "node-1",
		Applications: []Application{{Name: "web"}},
	}
	datasetFragment := NodeState{
		UUID:           nodeUUID,
		Hostname:       "node-1",
		Manifestations: map[uuid.UUID]Manifestation{},
		Paths:          map[uuid.UUID]string{},
	}

	t.Run("disjoint fragments combine", func(t *testing.T) {
		merged, err := MergeNodeStates(appFragment, datasetFragment)
		require.NoError(t, err)
		assert.True(t, merged.KnowsApplications())
		assert.True(t, merged.KnowsManifestations())
		assert.NotNil(t, merged.Paths)
		assert.Nil(t, merged.Devices)
	})

	t.Run("overlapping fragments are rejected", func(t *testing.T) {
		_, err := MergeNodeStates(appFragment, appFragment)
		assert.Error(t, err)
	})

	t.Run("different nodes are rejected", func(t *testing.T) {
		otherNode := NodeState{UUID: uuid.New(), Hostname: "node-2"}
		_, err := MergeNodeStates(appFragment, otherNode)
		assert.Error(t, err)
	})

	t.Run("no fragments is an error", func(t *testing.T) {
		_, err := MergeNodeStates()
		assert.Error(t, err)
	})
}
