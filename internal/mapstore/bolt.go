package mapstore

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"document-deidentifier/internal/deid"
	"document-deidentifier/internal/logger"
)

const boltBucket = "replacement_maps"

// boltStore is a Store backed by an embedded bbolt database. Records are
// JSON-encoded under their run ID.
type boltStore struct {
	db  *bolt.DB
	log *logger.Logger
}

// NewBolt opens (or creates) the bbolt database at path.
func NewBolt(path string, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open map store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create map store bucket: %w", err)
	}
	log.Infof("open", "map store opened at %s", path)
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Save(source string, m deid.ReplacementMap) (Record, error) {
	rec := newRecord(source, m)
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", boltBucket)
		}
		return b.Put([]byte(rec.ID), data)
	}); err != nil {
		return Record{}, fmt.Errorf("store map %s: %w", rec.ID, err)
	}
	s.log.Debugf("save", "run %s: %d replacements from %s", rec.ID, rec.Mappings.Len(), rec.Source)
	return rec, nil
}

func (s *boltStore) Get(id string) (Record, error) {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(id)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return Record{}, fmt.Errorf("load map %s: %w", id, err)
	}
	if data == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode map %s: %w", id, err)
	}
	return rec, nil
}

func (s *boltStore) List() ([]Record, error) {
	out := make([]Record, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				s.log.Warnf("list", "skipping undecodable record %s: %v", k, err)
				return nil
			}
			rec.Mappings = nil
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	sortRecords(out)
	return out, nil
}

func (s *boltStore) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
