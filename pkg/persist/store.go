// Package persist stores document cache snapshots durably in Badger.
//
// Each cached (query hash, variables key) entry is written as its own
// record under a "doc/" key prefix, plus one metadata record tagging the
// producing cache variant. Every record carries an xxhash64 checksum that is
// verified on load; records that fail verification are skipped with a logged
// diagnostic instead of failing the whole load, so one corrupt entry never
// blocks rehydration.
//
// A Persister wires a Store to a live cache through the cache's operation
// bus: every writeQuery is persisted as it happens, and Hydrate restores the
// persisted state into the cache on startup.
package persist

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/orneryd/doccache/pkg/snapshot"
)

const (
	// entryPrefix namespaces cached result records.
	entryPrefix = "doc/"
	// metaRecordKey holds the snapshot metadata record.
	metaRecordKey = "meta"
)

// Errors for persistence operations.
var (
	ErrChecksumMismatch = errors.New("persist: record checksum mismatch")
	ErrRecordTooShort   = errors.New("persist: record shorter than checksum header")
)

// Store is a Badger-backed snapshot store.
type Store struct {
	db     *badger.DB
	logger Logger
}

// Open opens (or creates) a snapshot store in dir. A nil logger selects a
// stdlib-log default.
func Open(dir string, logger Logger) (*Store, error) {
	if logger == nil {
		logger = defaultLogger{}
	}

	// Badger's own chatter is suppressed; the store logs through Logger.
	opts := badger.DefaultOptions(dir).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persist: opening store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeRecord prepends an 8-byte big-endian xxhash64 of payload.
func encodeRecord(payload []byte) []byte {
	rec := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(rec[:8], xxhash.Sum64(payload))
	copy(rec[8:], payload)
	return rec
}

// decodeRecord verifies and strips the checksum header.
func decodeRecord(rec []byte) ([]byte, error) {
	if len(rec) < 8 {
		return nil, ErrRecordTooShort
	}
	payload := rec[8:]
	if binary.BigEndian.Uint64(rec[:8]) != xxhash.Sum64(payload) {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// entryKey builds the Badger key for a cached entry. The query hash is
// fixed-length hex and never contains '/', so the first '/' after the
// prefix separates hash from variables key.
func entryKey(hash, varKey string) []byte {
	return []byte(entryPrefix + hash + "/" + varKey)
}

// parseEntryKey splits a Badger key back into (hash, varKey).
func parseEntryKey(key string) (hash, varKey string, ok bool) {
	rest, found := strings.CutPrefix(key, entryPrefix)
	if !found {
		return "", "", false
	}
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// WriteEntry persists one cached result under (hash, varKey).
func (s *Store) WriteEntry(hash, varKey string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("persist: encoding entry: %w", err)
	}

	rec := encodeRecord(payload)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(hash, varKey), rec)
	})
}

// WriteMeta persists the snapshot metadata record.
func (s *Store) WriteMeta(meta snapshot.Meta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("persist: encoding meta: %w", err)
	}

	rec := encodeRecord(payload)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaRecordKey), rec)
	})
}

// Save replaces the persisted state with the contents of snap.
func (s *Store) Save(snap *snapshot.Snapshot) error {
	if err := s.db.DropPrefix([]byte(entryPrefix)); err != nil {
		return fmt.Errorf("persist: clearing previous entries: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for hash, byVars := range snap.Data {
		for varKey, result := range byVars {
			payload, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("persist: encoding entry: %w", err)
			}
			if err := wb.Set(entryKey(hash, varKey), encodeRecord(payload)); err != nil {
				return fmt.Errorf("persist: batching entry: %w", err)
			}
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("persist: flushing entries: %w", err)
	}

	return s.WriteMeta(snapshot.Meta{
		Variant:      snap.Variant,
		ExtraRootIDs: snap.ExtraRootIDs,
	})
}

// Load reads the persisted state back into a snapshot. Records with
// checksum or decode failures are skipped and logged; a missing meta record
// leaves the variant empty.
func (s *Store) Load() (*snapshot.Snapshot, error) {
	snap := snapshot.New("")

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaRecordKey))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("persist: reading meta: %w", err)
			}
			s.loadMeta(snap, raw)
		case errors.Is(err, badger.ErrKeyNotFound):
			// First run, nothing persisted yet.
		default:
			return fmt.Errorf("persist: reading meta: %w", err)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			hash, varKey, ok := parseEntryKey(key)
			if !ok {
				continue
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("persist: reading entry %s: %w", key, err)
			}

			payload, err := decodeRecord(raw)
			if err != nil {
				s.logger.Log("warn", "skipping corrupt cache entry", map[string]any{
					"key":   key,
					"error": err.Error(),
				})
				continue
			}

			var result any
			if err := json.Unmarshal(payload, &result); err != nil {
				s.logger.Log("warn", "skipping undecodable cache entry", map[string]any{
					"key":   key,
					"error": err.Error(),
				})
				continue
			}

			snap.Set(hash, varKey, result)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// loadMeta applies a persisted meta record to snap, tolerating corruption.
func (s *Store) loadMeta(snap *snapshot.Snapshot, raw []byte) {
	payload, err := decodeRecord(raw)
	if err != nil {
		s.logger.Log("warn", "skipping corrupt meta record", map[string]any{"error": err.Error()})
		return
	}

	var meta snapshot.Meta
	if err := json.Unmarshal(payload, &meta); err != nil {
		s.logger.Log("warn", "skipping undecodable meta record", map[string]any{"error": err.Error()})
		return
	}

	snap.Variant = meta.Variant
	if meta.ExtraRootIDs != nil {
		snap.ExtraRootIDs = meta.ExtraRootIDs
	}
}
