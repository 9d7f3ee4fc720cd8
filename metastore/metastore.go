// Package metastore persists the allocator's in-RAM state — the
// armored bitmap, the quality mask, and health counters — across
// volume close/reopen. It is bucket-per-concern bbolt, scoped to
// allocator bookkeeping rather than superblock/mount lifecycle.
package metastore

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"hn4.dev/core/bitmap"
)

var (
	bucketBitmapWords = []byte("bitmap_words")
	bucketQualityMask = []byte("quality_groups")
	bucketCounters    = []byte("health_counters")
)

// Store wraps one bbolt database file holding every persisted
// allocator region for a volume.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the metastore database at path, creating its
// buckets if absent.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("metastore: open bbolt: %w", err)
	}
	s := &Store{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBitmapWords, bucketQualityMask, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// region is the sub-bucket key prefix a named bitmap/qmask region is
// stored under, e.g. "ballistic" or "horizon"; a volume has at most a
// handful of these.
func regionKey(region string, idx int) []byte {
	key := make([]byte, len(region)+1+4)
	copy(key, region)
	key[len(region)] = ':'
	binary.BigEndian.PutUint32(key[len(region)+1:], uint32(idx))
	return key
}

// SaveBitmap snapshots every armored word of bmp under region.
func (s *Store) SaveBitmap(region string, bmp *bitmap.Bitmap) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBitmapWords)
		for i := 0; i < bmp.WordCount(); i++ {
			w, err := bmp.WordAt(i)
			if err != nil {
				return err
			}
			data, ecc := w.Snapshot()
			buf := make([]byte, 9)
			binary.BigEndian.PutUint64(buf[0:8], data)
			buf[8] = ecc
			if err := b.Put(regionKey(region, i), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadBitmap restores a bitmap previously saved under region into a
// freshly allocated Bitmap covering [base, base+capacity). Missing
// words are left at their zero (all-clear) default, which is correct
// for a region never before persisted.
func (s *Store) LoadBitmap(region string, base, capacity uint64) (*bitmap.Bitmap, error) {
	bmp := bitmap.New(base, capacity)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBitmapWords)
		for i := 0; i < bmp.WordCount(); i++ {
			raw := b.Get(regionKey(region, i))
			if raw == nil {
				continue
			}
			if len(raw) != 9 {
				return fmt.Errorf("metastore: bitmap word %s/%d has %d bytes, want 9", region, i, len(raw))
			}
			w, err := bmp.WordAt(i)
			if err != nil {
				return err
			}
			w.Restore(binary.BigEndian.Uint64(raw[0:8]), raw[8])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bmp, nil
}

// SaveQualityMask snapshots every packed 32-block quality group of qm
// under region.
func (s *Store) SaveQualityMask(region string, qm *bitmap.QualityMask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQualityMask)
		for i := 0; i < qm.GroupCount(); i++ {
			g, err := qm.GroupAt(i)
			if err != nil {
				return err
			}
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, g)
			if err := b.Put(regionKey(region, i), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadQualityMask restores a quality mask previously saved under
// region into a freshly allocated QualityMask. Unsaved groups default
// to Good, matching NewQualityMask's own default.
func (s *Store) LoadQualityMask(region string, base, capacity uint64) (*bitmap.QualityMask, error) {
	qm := bitmap.NewQualityMask(base, capacity)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQualityMask)
		for i := 0; i < qm.GroupCount(); i++ {
			raw := b.Get(regionKey(region, i))
			if raw == nil {
				continue
			}
			if len(raw) != 8 {
				return fmt.Errorf("metastore: quality group %s/%d has %d bytes, want 8", region, i, len(raw))
			}
			if err := qm.RestoreGroup(i, binary.BigEndian.Uint64(raw)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return qm, nil
}

// IncrCounter atomically bumps a named health counter (e.g.
// "heal_count", "collapse_count") by delta and returns its new value.
func (s *Store) IncrCounter(name string, delta uint64) (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		cur := uint64(0)
		if raw := b.Get([]byte(name)); raw != nil {
			cur = binary.BigEndian.Uint64(raw)
		}
		next = cur + delta
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		return b.Put([]byte(name), buf)
	})
	return next, err
}

// GetCounter reads a named health counter, defaulting to 0.
func (s *Store) GetCounter(name string) (uint64, error) {
	var v uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if raw := b.Get([]byte(name)); raw != nil {
			v = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return v, err
}
