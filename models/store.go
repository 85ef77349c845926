package models

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rohanthewiz/serr"
	"github.com/vmihailenco/msgpack/v5"
)

// ============================================================================
// Durable Local Store
//
// A namespaced key-value store over a local DuckDB file. It holds the
// serialized mutation queue, per-table snapshot lists, the last successful
// sync timestamp, and the conflict audit log. Values are msgpack-encoded.
// Writes go to disk before the calling operation returns, so a crash or
// reload never loses queued work; the store is the recovery truth.
// ============================================================================

var (
	db   *sql.DB
	dbMu sync.RWMutex // Protect concurrent access during writes

	// rmwMu serializes load-modify-save sequences over stored lists (queue,
	// snapshots, conflict log). dbMu only guards individual statements, so
	// without this two concurrent appends read the same list and the second
	// save clobbers the first.
	rmwMu sync.Mutex
)

// Key namespace. The fixed prefix keeps the store's keys distinct from
// anything else that might share the database file.
const kvPrefix = "bptrack:"

const (
	kvQueueKey       = kvPrefix + "offline_queue"
	kvLastSyncKey    = kvPrefix + "last_sync"
	kvDataPrefix     = kvPrefix + "offline_data:" // + entity table name
	kvConflictLogKey = kvPrefix + "conflict_log"
)

// InitDB opens the local store at the given path and runs migrations.
func InitDB(path string) error {
	var err error
	db, err = sql.Open("duckdb", path)
	if err != nil {
		return serr.Wrap(err, "failed to open local store")
	}

	if err := migrateDB(db); err != nil {
		return serr.Wrap(err, "failed to migrate local store")
	}

	return nil
}

// InitTestDB opens a throwaway store for tests. Same as InitDB; the separate
// name keeps test setup sites obvious.
func InitTestDB(path string) error {
	return InitDB(path)
}

// CloseDB closes the local store.
func CloseDB() {
	if db != nil {
		db.Close()
		db = nil
	}
}

const ddlCreateKVTable = `
CREATE TABLE IF NOT EXISTS offline_kv (
    key        VARCHAR PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// migrateDB creates the store schema.
func migrateDB(d *sql.DB) error {
	if _, err := d.Exec(ddlCreateKVTable); err != nil {
		return serr.Wrap(err, "failed to create offline_kv table")
	}
	return nil
}

// kvPut serializes a value with msgpack and upserts it under the given key.
// The write hits disk before returning.
func kvPut(key string, value any) error {
	if db == nil {
		return serr.New("local store is not initialized")
	}

	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return serr.Wrap(err, "failed to encode value for local store", "key", key)
	}

	dbMu.Lock()
	defer dbMu.Unlock()

	_, err = db.Exec(
		`INSERT OR REPLACE INTO offline_kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, encoded, time.Now(),
	)
	if err != nil {
		return serr.Wrap(err, "failed to write to local store", "key", key)
	}
	return nil
}

// kvGet loads and decodes the value under key into out.
// Returns false with no error when the key is absent.
func kvGet(key string, out any) (bool, error) {
	if db == nil {
		return false, serr.New("local store is not initialized")
	}

	dbMu.RLock()
	defer dbMu.RUnlock()

	var encoded []byte
	err := db.QueryRow(`SELECT value FROM offline_kv WHERE key = ?`, key).Scan(&encoded)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, serr.Wrap(err, "failed to read from local store", "key", key)
	}

	if err := msgpack.Unmarshal(encoded, out); err != nil {
		return false, serr.Wrap(err, "failed to decode value from local store", "key", key)
	}
	return true, nil
}

// kvDelete removes a key. Deleting an absent key is a no-op.
func kvDelete(key string) error {
	if db == nil {
		return serr.New("local store is not initialized")
	}

	dbMu.Lock()
	defer dbMu.Unlock()

	if _, err := db.Exec(`DELETE FROM offline_kv WHERE key = ?`, key); err != nil {
		return serr.Wrap(err, "failed to delete from local store", "key", key)
	}
	return nil
}

// kvKeys lists keys under a prefix, sorted for deterministic iteration.
func kvKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, serr.New("local store is not initialized")
	}

	dbMu.RLock()
	defer dbMu.RUnlock()

	rows, err := db.Query(
		`SELECT key FROM offline_kv WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, serr.Wrap(err, "failed to list local store keys", "prefix", prefix)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, serr.Wrap(err, "failed to scan local store key")
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// clearNamespace deletes every key under the bptrack prefix.
// Used by ClearOfflineData; callers confirm intent upstream.
func clearNamespace() error {
	if db == nil {
		return serr.New("local store is not initialized")
	}

	dbMu.Lock()
	defer dbMu.Unlock()

	if _, err := db.Exec(`DELETE FROM offline_kv WHERE key LIKE ? || '%'`, kvPrefix); err != nil {
		return serr.Wrap(err, "failed to clear local store namespace")
	}
	return nil
}
