// Package archive persists raw provider responses so failed sessions can
// be inspected offline. Terminal failure results reference the session ID
// under which the response was stored.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("no archived response for session")

var bucketResponses = []byte("responses")

// Store is a bounded log of raw responses, newest-kept, in a single
// bbolt file.
type Store struct {
	db    *bolt.DB
	limit int
}

type entry struct {
	SessionID string    `json:"session_id"`
	Created   time.Time `json:"created"`
	Raw       []byte    `json:"raw"`
}

// Open opens (or creates) the archive at path, keeping at most limit
// entries.
func Open(path string, limit int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResponses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, limit: limit}, nil
}

// OpenDefault opens the archive at ~/.sled/raw.db.
func OpenDefault(limit int) (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(home, ".sled", "raw.db"), limit)
}

// Put stores the raw response under the session ID and prunes the oldest
// entries beyond the limit.
func (s *Store) Put(sessionID string, raw []byte) error {
	val, err := json.Marshal(entry{SessionID: sessionID, Created: time.Now().UTC(), Raw: raw})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResponses)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), val); err != nil {
			return err
		}

		// Prune oldest entries beyond the limit
		count := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			count++
		}
		for k, _ := c.First(); k != nil && count > s.limit; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			count--
		}
		return nil
	})
}

// Get returns the raw response archived for the session ID.
func (s *Store) Get(sessionID string) ([]byte, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResponses).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			if e.SessionID == sessionID {
				raw = e.Raw
				return nil
			}
		}
		return ErrNotFound
	})
	return raw, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
