package persist

import (
	"github.com/google/uuid"
)

// Store is durable, node-local book-keeping that survives agent restarts.
// It is distinct from both desired and observed state: it records facts the
// agent itself generated and must not lose, such as its own identity and
// dataset IDs it minted for locally-created volumes.
type Store interface {
	// NodeUUID returns this agent's identity, generating and persisting
	// one on first use.
	NodeUUID() (uuid.UUID, error)

	// DatasetIDFor returns the dataset ID recorded under the given key,
	// minting and persisting a new one if none exists. Repeated calls with
	// the same key always return the same ID.
	DatasetIDFor(key string) (uuid.UUID, error)

	Close() error
}
