package persist

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketAgent      = []byte("agent")
	bucketDatasetIDs = []byte("dataset_ids")

	keyNodeUUID = []byte("node_uuid")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the persistent state database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "anchor.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAgent, bucketDatasetIDs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// NodeUUID returns the persisted agent identity, generating one on first use.
func (s *BoltStore) NodeUUID() (uuid.UUID, error) {
	var nodeUUID uuid.UUID
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAgent)
		if data := b.Get(keyNodeUUID); data != nil {
			parsed, err := uuid.ParseBytes(data)
			if err != nil {
				return fmt.Errorf("corrupt node uuid: %w", err)
			}
			nodeUUID = parsed
			return nil
		}
		nodeUUID = uuid.New()
		return b.Put(keyNodeUUID, []byte(nodeUUID.String()))
	})
	return nodeUUID, err
}

// DatasetIDFor returns the dataset ID recorded under key, minting one if
// absent.
func (s *BoltStore) DatasetIDFor(key string) (uuid.UUID, error) {
	var datasetID uuid.UUID
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDatasetIDs)
		if data := b.Get([]byte(key)); data != nil {
			parsed, err := uuid.ParseBytes(data)
			if err != nil {
				return fmt.Errorf("corrupt dataset id for %q: %w", key, err)
			}
			datasetID = parsed
			return nil
		}
		datasetID = uuid.New()
		return b.Put([]byte(key), []byte(datasetID.String()))
	})
	return datasetID, err
}
