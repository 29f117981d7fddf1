package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorhq/anchor/pkg/persist"
)

const sampleDeployment = `
nodes:
  - hostname: node1.example.com
    applications:
      - name: site
        image: acme/wordpress
        ports:
          - internal: 80
            external: 8080
        links:
          - alias: mysql
            local_port: 3306
            remote_port: 3306
        environment:
          SITE: example.com
  - hostname: node2.example.com
    uuid: 22222222-2222-2222-2222-222222222222
    applications:
      - name: db
        image: acme/mysql:5.6
        ports:
          - internal: 3306
            external: 3306
        volume:
          dataset: mysql-data
          mountpoint: /var/lib/mysql
          maximum_size: 104857600
`

func TestParseDeployment(t *testing.T) {
	store := persist.NewMemoryStore()
	localUUID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	deployment, err := parseDeployment([]byte(sampleDeployment), store, localUUID, "node1.example.com")
	require.NoError(t, err)
	require.Len(t, deployment.Nodes, 2)

	local := deployment.Nodes[0]
	assert.Equal(t, localUUID, local.UUID, "the local node inherits the agent's identity")
	require.Len(t, local.Applications, 1)
	site := local.Applications[0]
	assert.Equal(t, "acme/wordpress:latest", site.Image.FullName())
	assert.True(t, site.Running)
	assert.Equal(t, []int{8080}, []int{site.Ports[0].ExternalPort})
	assert.Equal(t, "mysql", site.Links[0].Alias)
	assert.Empty(t, local.Manifestations)

	peer := deployment.Nodes[1]
	assert.Equal(t, uuid.MustParse("22222222-2222-2222-2222-222222222222"), peer.UUID)
	require.Len(t, peer.Applications, 1)
	db := peer.Applications[0]
	require.NotNil(t, db.Volume)
	assert.Equal(t, "/var/lib/mysql", db.Volume.Mountpoint)
	require.NotNil(t, db.Volume.Manifestation.Dataset.MaximumSize)
	assert.Equal(t, int64(104857600), *db.Volume.Manifestation.Dataset.MaximumSize)

	// The application's manifestation is also desired on its node.
	_, ok := peer.Manifestations[db.Volume.DatasetID()]
	assert.True(t, ok)

	// The same dataset name keeps its identity on a reparse.
	again, err := parseDeployment([]byte(sampleDeployment), store, localUUID, "node1.example.com")
	require.NoError(t, err)
	assert.Equal(t, db.Volume.DatasetID(), again.Nodes[1].Applications[0].Volume.DatasetID())
}

func TestParseDeploymentErrors(t *testing.T) {
	store := persist.NewMemoryStore()
	localUUID := uuid.New()

	cases := []struct {
		name    string
		content string
	}{
		{"remote node without uuid", "nodes:\n  - hostname: other.example.com\n"},
		{"missing hostname", "nodes:\n  - applications: []\n"},
		{"bad uuid", "nodes:\n  - hostname: a\n    uuid: nope\n"},
		{"empty image", "nodes:\n  - hostname: node1\n    applications:\n      - name: x\n        image: \":latest\"\n"},
		{"volume without mountpoint", "nodes:\n  - hostname: node1\n    applications:\n      - name: x\n        image: nginx\n        volume:\n          dataset: data\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDeployment([]byte(tc.content), store, localUUID, "node1")
			assert.Error(t, err)
		})
	}
}
