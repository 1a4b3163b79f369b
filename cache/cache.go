// Package cache is the persistent track-record store. Records are keyed by
// file path and fingerprinted with (size, mtime); a record whose file has
// changed since analysis is invisible. The store is shared across processes:
// every operation holds an advisory lock on a companion lock file for the
// bounded duration of a single get or put.
package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/dgraph-io/badger/v3"
	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"harmonix/track"
)

// SchemaVersion is baked into every entry; bumping it invalidates all
// existing stores.
const SchemaVersion = 4

const (
	lockFileName  = "cache.lock"
	storeDirName  = "store"
	schemaMarker  = "__schema__"
	lockWait      = 2 * time.Second
	lockRetryStep = 10 * time.Millisecond
)

// ErrSchemaMismatch is returned by Open for a store written by a different
// binary generation. MigrateSchema clears it.
var ErrSchemaMismatch = errors.New("cache schema version mismatch")

type entry struct {
	SchemaVersion int    `msgpack:"schema_version"`
	SizeBytes     int64  `msgpack:"size_bytes"`
	MtimeNS       int64  `msgpack:"mtime_ns"`
	Record        []byte `msgpack:"record"`
}

// Store is a handle on one cache directory. It holds no open resources;
// the underlying database is opened per operation so that concurrent
// processes interleave under the advisory lock.
type Store struct {
	dir      string
	storeDir string
	lock     *flock.Flock
}

// Open prepares dir as a cache and verifies its schema generation.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:      dir,
		storeDir: filepath.Join(dir, storeDirName),
		lock:     flock.New(filepath.Join(dir, lockFileName)),
	}
	locked, err := s.lockExclusive()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("cache: could not acquire lock within %v", lockWait)
	}
	defer s.lock.Unlock()

	db, err := s.openRW()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	err = db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaMarker))
		if errors.Is(err, badger.ErrKeyNotFound) {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], uint64(SchemaVersion))
			return txn.Set([]byte(schemaMarker), buf[:])
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 8 || binary.BigEndian.Uint64(v) != SchemaVersion {
				return ErrSchemaMismatch
			}
			return nil
		})
	})
	if errors.Is(err, ErrSchemaMismatch) {
		// Hand the caller a usable handle so it can MigrateSchema.
		return s, err
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the cached record for path if its fingerprint still matches
// the file on disk. Any lock timeout, store error, or corrupt entry is a
// miss.
func (s *Store) Get(path string) (*track.Track, bool) {
	locked, err := s.lockShared()
	if err != nil || !locked {
		return nil, false
	}
	defer s.lock.Unlock()

	st0, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	db, err := s.openRO()
	if err != nil {
		return nil, false
	}
	defer db.Close()

	var e entry
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return msgpack.Unmarshal(v, &e)
		})
	})
	if err != nil {
		return nil, false
	}

	// Double check: the stat that justified the lookup may have raced a
	// concurrent writer. Re-stat and re-look-up under the lock and validate
	// against those.
	st1, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if st0.Size() != st1.Size() || st0.ModTime().UnixNano() != st1.ModTime().UnixNano() {
		return nil, false
	}
	e = entry{}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(path))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return msgpack.Unmarshal(v, &e)
		})
	})
	if err != nil {
		return nil, false
	}
	if e.SchemaVersion != SchemaVersion ||
		e.SizeBytes != st1.Size() || e.MtimeNS != st1.ModTime().UnixNano() {
		return nil, false
	}

	var t track.Track
	if err := msgpack.Unmarshal(e.Record, &t); err != nil {
		return nil, false
	}
	return &t, true
}

// Put stores the record under path with the file's current fingerprint.
// A vanished file or a lock timeout discards the write silently.
func (s *Store) Put(path string, t *track.Track) error {
	locked, err := s.lockExclusive()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if !locked {
		return nil // lock timeout: discard
	}
	defer s.lock.Unlock()

	st, err := os.Stat(path)
	if err != nil {
		return nil // file gone: discard
	}

	record, err := msgpack.Marshal(t)
	if err != nil {
		return fmt.Errorf("cache: encode record: %w", err)
	}
	value, err := msgpack.Marshal(entry{
		SchemaVersion: SchemaVersion,
		SizeBytes:     st.Size(),
		MtimeNS:       st.ModTime().UnixNano(),
		Record:        record,
	})
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}

	db, err := s.openRW()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(path), value)
	})
}

// Clear drops every entry but keeps the store usable.
func (s *Store) Clear() error {
	locked, err := s.lockExclusive()
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("cache: could not acquire lock within %v", lockWait)
	}
	defer s.lock.Unlock()

	db, err := s.openRW()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.DropAll(); err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(SchemaVersion))
		return txn.Set([]byte(schemaMarker), buf[:])
	})
}

// MigrateSchema moves a store from an old schema generation to the current
// one. Entries cannot be carried across generations, so migration clears
// the data and rewrites the marker.
func (s *Store) MigrateSchema(old, current int) error {
	if current != SchemaVersion {
		return fmt.Errorf("cache: cannot migrate to version %d, binary supports %d", current, SchemaVersion)
	}
	if old == current {
		return nil
	}
	return s.Clear()
}

func (s *Store) openRW() (*badger.DB, error) {
	opts := badger.DefaultOptions(s.storeDir).WithLogger(nil)
	return badger.Open(opts)
}

func (s *Store) openRO() (*badger.DB, error) {
	opts := badger.DefaultOptions(s.storeDir).WithLogger(nil).WithReadOnly(true)
	return badger.Open(opts)
}

func (s *Store) lockShared() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()
	return s.lock.TryRLockContext(ctx, lockRetryStep)
}

func (s *Store) lockExclusive() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()
	return s.lock.TryLockContext(ctx, lockRetryStep)
}

func storeKey(path string) []byte {
	h := xxhash.Checksum64([]byte(path))
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, h)
	return key
}
