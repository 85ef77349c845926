package models

import (
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Conflict Detection & Resolution
//
// A conflict exists when a queued local mutation and the current server
// record for the same logical entity genuinely diverge. Detection is
// timestamp-gated: if the server was not modified after the mutation was
// captured, there is nothing to reconcile regardless of field values.
// Resolution computes the record to apply under a chosen strategy; the
// guiding rule for merges is: never lose user-entered qualitative data,
// prefer the temporally authoritative source for quantitative clinical
// data.
//
// The resolver is stateless: it receives data and returns a decision; the
// Offline Storage Manager applies it. Every applied resolution is appended
// to a persisted audit log so unexpected data states can be diagnosed
// after the fact.
// ============================================================================

// ConflictType classifies a detected divergence.
type ConflictType string

const (
	ConflictUpdateVsUpdate ConflictType = "update_vs_update"
	ConflictUpdateVsDelete ConflictType = "update_vs_delete"
)

// ConflictResolution selects a resolution strategy.
type ConflictResolution string

const (
	ResolveLocal  ConflictResolution = "local"
	ResolveServer ConflictResolution = "server"
	ResolveMerge  ConflictResolution = "merge"
)

// ConflictDetails describes one detected conflict. Computed per sync
// attempt and surfaced to the caller, not persisted.
type ConflictDetails struct {
	MutationID string       `json:"mutation_id"`
	Table      string       `json:"table"`
	LocalData  Payload      `json:"local_data"`
	ServerData Payload      `json:"server_data"`
	Type       ConflictType `json:"type"`
	DetectedAt time.Time    `json:"detected_at"`
	Fields     []string     `json:"fields"` // Diverging field names
}

// DetectConflict compares a queued mutation against the current server
// record for the same logical entity. Returns nil when no conflict exists:
// the server record is absent, the server was not modified after the
// mutation was captured, or no relevant field diverges.
func DetectConflict(m QueuedMutation, serverRecord Payload) (*ConflictDetails, error) {
	if serverRecord == nil {
		return nil, nil // Nothing to diverge from
	}

	schema, err := schemaFor(m.Table)
	if err != nil {
		return nil, err
	}

	// Captured timestamp of the local mutation: the payload's updated_at
	// when present (an edit of an earlier record), else the enqueue time.
	captured := m.CreatedAt
	if t, ok := payloadTime(m.Payload, "updated_at"); ok {
		captured = t
	}

	serverUpdated, ok := payloadTime(serverRecord, "updated_at")
	if !ok {
		serverUpdated, ok = payloadTime(serverRecord, "created_at")
	}
	if !ok || !serverUpdated.After(captured) {
		return nil, nil // Server is not newer, local change applies cleanly
	}

	var diverging []string
	for _, field := range schema.compareFields {
		if !payloadFieldsEqual(m.Payload, serverRecord, field) {
			diverging = append(diverging, field)
		}
	}
	if len(diverging) == 0 {
		return nil, nil
	}

	conflictType := ConflictUpdateVsUpdate
	if m.Action == ActionDelete {
		conflictType = ConflictUpdateVsDelete
	}

	return &ConflictDetails{
		MutationID: m.ID,
		Table:      m.Table,
		LocalData:  m.Payload.Clone(),
		ServerData: serverRecord.Clone(),
		Type:       conflictType,
		DetectedAt: time.Now(),
		Fields:     diverging,
	}, nil
}

// Resolve computes the record to apply for a confirmed conflict under the
// chosen strategy. customFields, when non-nil, are layered over the merge
// result so the caller can hand-pick individual field outcomes.
func Resolve(c *ConflictDetails, strategy ConflictResolution, customFields Payload) (Payload, error) {
	if c == nil {
		return nil, serr.New("no conflict details to resolve")
	}

	var resolved Payload
	switch strategy {
	case ResolveLocal:
		// Local wins outright, clinical values preserved verbatim
		resolved = c.LocalData.Clone()
	case ResolveServer:
		// Server stands; the local mutation is discarded by the manager
		return c.ServerData.Clone(), nil
	case ResolveMerge:
		// The backend may flag a conflict without including its current
		// record; there is nothing to merge against then.
		if c.ServerData == nil {
			return nil, serr.New("server record unavailable for merge; sync again or choose the local or server strategy")
		}
		merged, err := mergeRecords(c)
		if err != nil {
			return nil, err
		}
		resolved = merged
	default:
		return nil, serr.New("invalid resolution strategy: " + string(strategy))
	}

	for k, v := range customFields {
		resolved[k] = v
	}
	resolved["updated_at"] = time.Now().Format(time.RFC3339)
	resolved["sync_status"] = "synced"
	return resolved, nil
}

// mergeRecords reconciles local and server versions per the entity's
// schema: the temporally authoritative side's clinical values are kept,
// free text from both sides is concatenated, and non-null local context
// wins over null server context.
func mergeRecords(c *ConflictDetails) (Payload, error) {
	schema, err := schemaFor(c.Table)
	if err != nil {
		return nil, err
	}

	merged := c.ServerData.Clone()

	// Quantitative clinical data: whichever side's clinical timestamp is
	// later is authoritative for all clinical fields, keeping a reading's
	// pressure, pulse, and time as one coherent set.
	localTime, lok := payloadTime(c.LocalData, schema.timeField)
	serverTime, sok := payloadTime(c.ServerData, schema.timeField)
	localIsAuthoritative := lok && (!sok || localTime.After(serverTime))
	if localIsAuthoritative {
		for _, field := range schema.clinicalFields {
			if v, ok := c.LocalData[field]; ok && v != nil {
				merged[field] = v
			}
		}
	}

	// Free text: never silently drop either side.
	for _, field := range schema.textFields {
		merged[field] = mergeText(c.LocalData, c.ServerData, field)
	}

	// Context: non-null local values take precedence over null server ones.
	for _, field := range schema.contextFields {
		if v, ok := c.LocalData[field]; ok && v != nil {
			merged[field] = v
		}
	}

	return merged, nil
}

// mergeText combines a free-text field from both sides. When both carry
// distinct text, the local fragment is appended under a marker rather than
// overwriting the server's, so both survive as substrings.
func mergeText(local, server Payload, field string) any {
	localText, _ := payloadString(local, field)
	serverText, _ := payloadString(server, field)

	switch {
	case localText != "" && serverText != "" && localText != serverText:
		return serverText + "\n\n[Local update]: " + localText
	case localText != "":
		return localText
	case serverText != "":
		return serverText
	}
	return nil
}

// ============================================================================
// Conflict Audit Log
// ============================================================================

// ConflictLogEntry records an applied resolution for later diagnosis.
type ConflictLogEntry struct {
	MutationID string             `json:"mutation_id" msgpack:"mutation_id"`
	Table      string             `json:"table" msgpack:"table"`
	Type       ConflictType       `json:"type" msgpack:"type"`
	Fields     []string           `json:"fields" msgpack:"fields"`
	Resolution ConflictResolution `json:"resolution" msgpack:"resolution"`
	ResolvedAt time.Time          `json:"resolved_at" msgpack:"resolved_at"`
}

// appendConflictLog persists a resolution record. Errors are logged but not
// propagated; audit logging must never block resolution itself.
func appendConflictLog(entry ConflictLogEntry) {
	rmwMu.Lock()
	defer rmwMu.Unlock()

	var log []ConflictLogEntry
	if _, err := kvGet(kvConflictLogKey, &log); err != nil {
		logger.LogErr(err, "failed to load conflict log")
		return
	}
	log = append(log, entry)
	if err := kvPut(kvConflictLogKey, log); err != nil {
		logger.LogErr(err, "failed to append conflict log entry",
			"mutation_id", entry.MutationID,
			"resolution", string(entry.Resolution),
		)
	}
}

// ConflictLog returns all recorded resolutions, oldest first.
func ConflictLog() ([]ConflictLogEntry, error) {
	var log []ConflictLogEntry
	found, err := kvGet(kvConflictLogKey, &log)
	if err != nil {
		return nil, serr.Wrap(err, "failed to load conflict log")
	}
	if !found {
		return []ConflictLogEntry{}, nil
	}
	return log, nil
}
