// Package audit provides the BoltDB-backed append-only replay ledger for
// dqsnd — the concrete mechanism behind the Shield Contract v3 response's
// context_hash being "suitable for auditing and replay" (spec §1). It is
// entirely outside the deterministic core (internal/dqsn): the HTTP evaluate
// handler (internal/transport) calls Append once per Evaluate call, after the
// pure function has already returned.
//
// Schema (BoltDB bucket layout):
//
//	/responses
//	    key:   big-endian uint64 sequence (BoltDB NextSequence, monotonic)
//	    value: JSON-encoded Entry
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Entries older than RetentionDays are pruned once, on startup
//     (cmd/dqsnd). There is no periodic pruning while the service runs.
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error on
//     Open(). dqsnd logs a fatal event and refuses to start.
//   - Disk full: bbolt.Update() returns an error; Append propagates it but
//     the already-computed Response is still returned to the caller — a
//     ledger write failure must never turn a valid contract response into a
//     service failure.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dqsn-network/shield/internal/aggregate"
)

const (
	// DefaultDBPath is the default BoltDB ledger file location.
	DefaultDBPath = "/var/lib/dqsnd/audit.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	bucketResponses = "responses"
	bucketMeta      = "meta"
)

// Entry is a single ledger record: one Evaluate() response plus the
// metadata needed to audit and replay it.
type Entry struct {
	// Sequence is the monotonic BoltDB-assigned record number.
	Sequence uint64 `json:"sequence"`

	// RecordedAt is the wall-clock time the entry was appended. Audit-layer
	// only: the contract response itself never carries wall-clock time.
	RecordedAt time.Time `json:"recorded_at"`

	// Response is the full response envelope as returned by dqsn.Evaluate.
	Response aggregate.Response `json:"response"`

	// ParentHash is the context_hash of the previous ledger entry, chaining
	// entries into a Merkle-style sequence so a gap or reorder in the
	// ledger file is independently detectable from the responses alone.
	ParentHash string `json:"parent_hash"`
}

// DB wraps a BoltDB instance with typed accessors for the audit ledger.
type DB struct {
	db            *bolt.DB
	retentionDays int
	lastHash      string
}

// Open opens (or creates) the BoltDB ledger at path. Initialises all
// required buckets and verifies the schema version. Returns an error if the
// database is corrupt or the schema is incompatible.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("audit: bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketResponses, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("audit: database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	if err := d.loadLastHash(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"audit: schema version mismatch: database has %q, dqsnd requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// loadLastHash seeds lastHash from the most recently written entry so a
// restarted process continues the hash chain rather than resetting it.
func (d *DB) loadLastHash() error {
	return d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketResponses))
		c := b.Cursor()
		_, v := c.Last()
		if v == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("audit: loadLastHash unmarshal: %w", err)
		}
		d.lastHash = e.Response.ContextHash
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Append writes resp to the ledger as a new chained entry and returns the
// assigned sequence number. A write failure is returned to the caller but
// never mutates or invalidates resp itself.
func (d *DB) Append(resp aggregate.Response) (uint64, error) {
	entry := Entry{
		RecordedAt: time.Now().UTC(),
		Response:   resp,
		ParentHash: d.lastHash,
	}

	var seq uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketResponses))
		n, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("NextSequence: %w", err)
		}
		seq = n
		entry.Sequence = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return b.Put(sequenceKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("audit: Append: %w", err)
	}

	d.lastHash = resp.ContextHash
	return seq, nil
}

// PruneOlderThan deletes ledger entries recorded before cutoff. cmd/dqsnd
// calls it once on startup. Returns the number of entries deleted.
func (d *DB) PruneOlderThan(cutoff time.Time) (int, error) {
	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketResponses))
		c := b.Cursor()

		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("PruneOlderThan unmarshal: %w", err)
			}
			if e.RecordedAt.Before(cutoff) {
				keyCopy := append([]byte(nil), k...)
				toDelete = append(toDelete, keyCopy)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOlderThan delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// RetentionCutoff returns the cutoff time below which entries are eligible
// for pruning, given the configured retention window.
func (d *DB) RetentionCutoff() time.Time {
	return time.Now().UTC().AddDate(0, 0, -d.retentionDays)
}

// Count returns the number of entries currently in the ledger.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketResponses)).Stats().KeyN
		return nil
	})
	return n, err
}

// ReadAll returns all ledger entries in sequence order. Operational use
// only (CLI inspection, replay tooling) — never called on the hot path.
func (d *DB) ReadAll() ([]Entry, error) {
	var entries []Entry
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketResponses)).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}
