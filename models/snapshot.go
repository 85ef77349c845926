package models

import (
	"sort"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Local Entity Snapshots
//
// Cached copies of entities the user created or edited offline, keyed by
// local_id (distinct from any server-assigned id). A snapshot lives until
// the corresponding insert is confirmed synced (the server copy then
// becomes authoritative) or until conflict resolution sides with the
// server. Stored per table as one msgpack list under a namespaced key.
// ============================================================================

func snapshotKey(table string) string {
	return kvDataPrefix + table
}

// loadSnapshots returns the raw snapshot list for a table.
func loadSnapshots(table string) ([]Payload, error) {
	var snapshots []Payload
	found, err := kvGet(snapshotKey(table), &snapshots)
	if err != nil {
		return nil, serr.Wrap(err, "failed to load snapshots", "table", table)
	}
	if !found {
		return []Payload{}, nil
	}
	return snapshots, nil
}

// saveSnapshots persists the snapshot list for a table.
func saveSnapshots(table string, snapshots []Payload) error {
	if snapshots == nil {
		snapshots = []Payload{}
	}
	if err := kvPut(snapshotKey(table), snapshots); err != nil {
		return serr.Wrap(err, "failed to save snapshots", "table", table)
	}
	return nil
}

// upsertSnapshot writes or merges a snapshot, matching on local_id.
// An existing snapshot gets the new record's fields layered on top so a
// queued update doesn't wipe fields the update didn't touch.
func upsertSnapshot(table string, record Payload) error {
	localID, ok := payloadString(record, "local_id")
	if !ok || localID == "" {
		return serr.New("snapshot record requires a local_id")
	}

	rmwMu.Lock()
	defer rmwMu.Unlock()

	snapshots, err := loadSnapshots(table)
	if err != nil {
		return err
	}

	for i, existing := range snapshots {
		if id, _ := payloadString(existing, "local_id"); id == localID {
			merged := existing.Clone()
			for k, v := range record {
				merged[k] = v
			}
			snapshots[i] = merged
			return saveSnapshots(table, snapshots)
		}
	}

	snapshots = append(snapshots, record.Clone())
	return saveSnapshots(table, snapshots)
}

// removeSnapshot deletes the snapshot with the given local_id.
func removeSnapshot(table, localID string) error {
	rmwMu.Lock()
	defer rmwMu.Unlock()

	snapshots, err := loadSnapshots(table)
	if err != nil {
		return err
	}

	kept := snapshots[:0]
	for _, s := range snapshots {
		if id, _ := payloadString(s, "local_id"); id != localID {
			kept = append(kept, s)
		}
	}
	return saveSnapshots(table, kept)
}

// activeSnapshots returns a table's snapshots minus soft-deleted records,
// sorted most recent first by the entity's clinical timestamp.
func activeSnapshots(table string) ([]Payload, error) {
	schema, err := schemaFor(table)
	if err != nil {
		return nil, err
	}

	snapshots, err := loadSnapshots(table)
	if err != nil {
		return nil, err
	}

	active := snapshots[:0]
	for _, s := range snapshots {
		if deleted, _ := payloadBool(s, "is_deleted"); !deleted {
			active = append(active, s)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		ti, iok := payloadTime(active[i], schema.timeField)
		tj, jok := payloadTime(active[j], schema.timeField)
		if !iok || !jok {
			return jok // entries without a timestamp sort last
		}
		return ti.After(tj)
	})

	return active, nil
}
