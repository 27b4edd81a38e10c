package syncengine

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPreviousIndex = []byte("previous_index_by_root")

// IndexCache persists the "previous" index snapshot a sync session needs
// to tell a local deletion apart from a peer's not-yet-propagated create
// (see Reconcile) across process restarts. One bbolt bucket, one entry per
// sync root, keyed by the sync root path as configured.
type IndexCache struct {
	db *bolt.DB
}

// OpenIndexCache opens (creating if absent) a bbolt database at path for
// storing sync-root index snapshots.
func OpenIndexCache(path string) (*IndexCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPreviousIndex)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create previous_index bucket: %w", err)
	}
	return &IndexCache{db: db}, nil
}

func (c *IndexCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Load returns the last-saved index for root, or ok=false if none exists
// yet (first sync of this root).
func (c *IndexCache) Load(root string) (idx Index, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPreviousIndex).Get([]byte(root))
		if v == nil {
			return nil
		}
		if jerr := json.Unmarshal(v, &idx); jerr != nil {
			return fmt.Errorf("decode cached index for %s: %w", root, jerr)
		}
		ok = true
		return nil
	})
	return idx, ok, err
}

// Save overwrites the cached index for root.
func (c *IndexCache) Save(root string, idx Index) error {
	b, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index for %s: %w", root, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreviousIndex).Put([]byte(root), b)
	})
}
