package models

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Offline Storage Manager
//
// Orchestrates durable local buffering of mutations and their eventual
// replay against the Remote Data Facade. One manager instance owns the
// queue and snapshot stores for a user session; the facade and network
// monitor are injected so tests can substitute fakes.
//
// Concurrency model: queue and snapshot mutations are synchronous with the
// caller; facade calls are the only suspension points, awaited one at a
// time within a sync pass. SyncOfflineData is guarded by an in-memory
// single-flight flag; overlapping invocations short-circuit rather than
// interleave. The flag is best-effort (resets on restart); the queue itself
// is safe to retry since every mutation carries a stable id.
// ============================================================================

// OfflineStorageManager is the caller-facing surface of the sync layer.
// One instance per active user session; concurrent process instances
// sharing the same store file race last-writer-wins on the queue key.
type OfflineStorageManager struct {
	userID  string
	facade  RemoteDataFacade
	network *NetworkMonitor

	syncInProgress atomic.Bool
	unsubscribe    func()

	// Conflicts detected in the most recent sync pass, keyed by mutation
	// id. ResolveConflict needs the server-side record captured at
	// detection time; the queue itself only stores the local payload.
	conflictMu    sync.Mutex
	lastConflicts map[string]*ConflictDetails
}

// SyncError pairs a failed mutation with a human-readable reason.
type SyncError struct {
	Mutation QueuedMutation `json:"mutation"`
	Reason   string         `json:"reason"`
}

// SyncResult is the outcome of one sync pass. Success is true iff the
// error set is empty. Conflicts don't count as pass failure, they await
// explicit resolution.
type SyncResult struct {
	Success   bool              `json:"success"`
	Synced    []QueuedMutation  `json:"synced"`
	Conflicts []ConflictDetails `json:"conflicts"`
	Errors    []SyncError       `json:"errors"`
}

// NewOfflineStorageManager creates a manager for one user session and
// subscribes to the network monitor: regaining connectivity triggers an
// automatic sync pass in the background.
func NewOfflineStorageManager(userID string, facade RemoteDataFacade, network *NetworkMonitor) *OfflineStorageManager {
	m := &OfflineStorageManager{
		userID:        userID,
		facade:        facade,
		network:       network,
		lastConflicts: map[string]*ConflictDetails{},
	}

	m.unsubscribe = network.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := m.SyncOfflineData(context.Background()); err != nil {
				logger.LogErr(err, "reconnect sync pass failed")
			}
		}()
	})

	return m
}

// Close removes the manager's network subscription.
func (m *OfflineStorageManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// ============================================================================
// Recording mutations
// ============================================================================

// RecordMutation validates a payload, caches it locally, and queues it for
// sync. The locally-visible record is returned immediately so the caller
// can render optimistically regardless of connectivity; if the device is
// online, a background sync pass is kicked off fire-and-forget.
//
// Validation and storage failures are returned synchronously and leave the
// queue untouched; invalid data is never silently queued.
func (m *OfflineStorageManager) RecordMutation(table string, action int32, payload Payload) (*QueuedMutation, error) {
	// Returned unwrapped so callers can match ValidationError with errors.As
	if err := ValidatePayload(table, action, payload); err != nil {
		return nil, err
	}

	record := payload.Clone()
	now := time.Now().Format(time.RFC3339)

	switch action {
	case ActionInsert:
		if id, _ := payloadString(record, "local_id"); id == "" {
			record["local_id"] = GenerateLocalID()
		}
		if id, _ := payloadString(record, "id"); id == "" {
			// Temporary id until the server assigns the real one
			record["id"] = GenerateLocalID()
		}
		record["created_at"] = now
		record["updated_at"] = now
		record["is_deleted"] = false
		record["sync_status"] = "pending"
		if uid, _ := payloadString(record, "user_id"); uid == "" {
			record["user_id"] = m.userID
		}
	case ActionUpdate:
		record["updated_at"] = now
		record["sync_status"] = "pending"
	case ActionDelete:
		// Payload only needs to carry identity; validated above
	default:
		return nil, serr.New("unknown mutation action")
	}

	localID, _ := payloadString(record, "local_id")

	// Cache the locally-visible version before queueing
	switch action {
	case ActionInsert, ActionUpdate:
		if localID != "" {
			if err := upsertSnapshot(table, record); err != nil {
				return nil, serr.Wrap(err, "failed to cache record locally", "table", table)
			}
		}
	case ActionDelete:
		if localID != "" {
			tombstone := Payload{"local_id": localID, "is_deleted": true, "updated_at": now}
			if err := upsertSnapshot(table, tombstone); err != nil {
				return nil, serr.Wrap(err, "failed to mark local record deleted", "table", table)
			}
		}
	}

	mutation := QueuedMutation{
		ID:        GenerateLocalID(),
		Table:     table,
		Action:    action,
		Payload:   record,
		CreatedAt: time.Now(),
		Synced:    false,
	}
	if err := appendToQueue(mutation); err != nil {
		return nil, serr.Wrap(err, "failed to queue mutation", "table", table)
	}

	logger.Debug("Mutation queued", "table", table, "action", action, "mutation_id", mutation.ID)

	if m.network.IsOnline() {
		go func() {
			if _, err := m.SyncOfflineData(context.Background()); err != nil {
				logger.LogErr(err, "background sync pass failed")
			}
		}()
	}

	return &mutation, nil
}

// ============================================================================
// Sync pass
// ============================================================================

// SyncOfflineData replays the pending queue against the Remote Data Facade
// in FIFO order. A concurrent call while a pass is running, or while
// offline, returns an error immediately and performs no work. One record's
// failure never aborts the pass; errors and conflicts are batched into the
// result. Mutations enqueued mid-pass are picked up next time.
func (m *OfflineStorageManager) SyncOfflineData(ctx context.Context) (*SyncResult, error) {
	if !m.network.IsOnline() {
		return nil, serr.New("device is offline")
	}
	if !m.syncInProgress.CompareAndSwap(false, true) {
		return nil, serr.New("sync already in progress")
	}
	defer m.syncInProgress.Store(false)

	// Pass works over the queue as of pass start
	queue, err := loadQueue()
	if err != nil {
		return nil, serr.Wrap(err, "failed to load queue for sync pass")
	}

	result := &SyncResult{
		Synced:    []QueuedMutation{},
		Conflicts: []ConflictDetails{},
		Errors:    []SyncError{},
	}

	for _, mutation := range queue {
		res := m.dispatch(ctx, mutation)

		switch {
		case res.OK():
			mutation.Synced = true
			if err := removeFromQueue(mutation.ID); err != nil {
				result.Errors = append(result.Errors, SyncError{Mutation: mutation, Reason: err.Error()})
				continue
			}
			if mutation.Action == ActionInsert {
				// Server copy is now authoritative, drop the local snapshot
				if localID, _ := payloadString(mutation.Payload, "local_id"); localID != "" {
					if err := removeSnapshot(mutation.Table, localID); err != nil {
						logger.LogErr(err, "failed to remove superseded snapshot",
							"table", mutation.Table, "local_id", localID)
					}
				}
			}
			result.Synced = append(result.Synced, mutation)

		case res.Err.IsConflict():
			mutation.Conflict = true
			if err := updateQueued(mutation); err != nil {
				logger.LogErr(err, "failed to persist conflict flag", "mutation_id", mutation.ID)
			}
			details := m.captureConflict(mutation, res.Data)
			result.Conflicts = append(result.Conflicts, *details)

		default:
			result.Errors = append(result.Errors, SyncError{
				Mutation: mutation,
				Reason:   res.Err.Message,
			})
		}
	}

	if err := kvPut(kvLastSyncKey, time.Now()); err != nil {
		logger.LogErr(err, "failed to record sync pass timestamp")
	}

	result.Success = len(result.Errors) == 0
	logger.Info("Sync pass completed",
		"synced", len(result.Synced),
		"conflicts", len(result.Conflicts),
		"errors", len(result.Errors),
	)
	return result, nil
}

// dispatch routes one queued mutation to the facade operation matching its
// table and action.
func (m *OfflineStorageManager) dispatch(ctx context.Context, mutation QueuedMutation) Result {
	switch mutation.Action {
	case ActionInsert:
		return m.facade.Create(ctx, mutation.Table, mutation.Payload)
	case ActionUpdate:
		return m.facade.Update(ctx, mutation.Table, recordID(mutation.Payload), mutation.Payload)
	case ActionDelete:
		return m.facade.SoftDelete(ctx, mutation.Table, recordID(mutation.Payload))
	}
	return Result{Err: &RemoteError{Code: RemoteCodeValidation, Message: "unknown mutation action"}}
}

// recordID extracts the server-visible record id from a payload, falling
// back to the local id for records the server hasn't assigned one yet.
func recordID(p Payload) string {
	if id, ok := payloadString(p, "id"); ok && id != "" {
		return id
	}
	id, _ := payloadString(p, "local_id")
	return id
}

// captureConflict builds ConflictDetails for a CONFLICT result and retains
// them for a later ResolveConflict call. When the backend included the
// current server record, detection runs the full field comparison;
// otherwise the details carry just the classification.
func (m *OfflineStorageManager) captureConflict(mutation QueuedMutation, serverRecord Payload) *ConflictDetails {
	details, err := DetectConflict(mutation, serverRecord)
	if err != nil {
		logger.LogErr(err, "conflict detection failed", "mutation_id", mutation.ID)
	}
	if details == nil {
		conflictType := ConflictUpdateVsUpdate
		if mutation.Action == ActionDelete {
			conflictType = ConflictUpdateVsDelete
		}
		details = &ConflictDetails{
			MutationID: mutation.ID,
			Table:      mutation.Table,
			LocalData:  mutation.Payload.Clone(),
			ServerData: serverRecord.Clone(),
			Type:       conflictType,
			DetectedAt: time.Now(),
		}
	}

	m.conflictMu.Lock()
	m.lastConflicts[mutation.ID] = details
	m.conflictMu.Unlock()
	return details
}

// ============================================================================
// Conflict resolution
// ============================================================================

// ResolveConflict applies a resolution strategy to a conflicted queue
// entry. For the server strategy the local mutation is discarded outright.
// For local and merge, the resolved record is dispatched to the facade's
// update operation; if that call fails, the entry stays in its conflicted
// state for retry with no partial state transition.
func (m *OfflineStorageManager) ResolveConflict(ctx context.Context, mutationID string, strategy ConflictResolution, customFields Payload) error {
	mutation, err := findQueued(mutationID)
	if err != nil {
		return err
	}
	if mutation == nil {
		return serr.New("no queued mutation with id " + mutationID)
	}

	m.conflictMu.Lock()
	details := m.lastConflicts[mutationID]
	m.conflictMu.Unlock()

	localID, _ := payloadString(mutation.Payload, "local_id")

	if strategy == ResolveServer {
		// Server stands; drop the local change and its snapshot
		if err := removeFromQueue(mutationID); err != nil {
			return serr.Wrap(err, "failed to dequeue mutation for server resolution")
		}
		if localID != "" {
			if err := removeSnapshot(mutation.Table, localID); err != nil {
				logger.LogErr(err, "failed to remove snapshot after server resolution",
					"table", mutation.Table, "local_id", localID)
			}
		}
		m.logResolution(mutation, details, ResolveServer)
		return nil
	}

	if details == nil {
		return serr.New("no conflict details for mutation " + mutationID + "; run a sync pass first")
	}

	resolved, err := Resolve(details, strategy, customFields)
	if err != nil {
		return err
	}

	id := recordID(details.ServerData)
	if id == "" {
		id = recordID(mutation.Payload)
	}

	res := m.facade.Update(ctx, mutation.Table, id, resolved)
	if !res.OK() {
		// Leave the entry conflicted for retry
		return serr.New("resolution update rejected by backend: " + res.Err.Message)
	}

	if err := removeFromQueue(mutationID); err != nil {
		return serr.Wrap(err, "failed to dequeue resolved mutation")
	}
	if localID != "" {
		if err := removeSnapshot(mutation.Table, localID); err != nil {
			logger.LogErr(err, "failed to remove snapshot after resolution",
				"table", mutation.Table, "local_id", localID)
		}
	}
	m.logResolution(mutation, details, strategy)
	return nil
}

func (m *OfflineStorageManager) logResolution(mutation *QueuedMutation, details *ConflictDetails, strategy ConflictResolution) {
	entry := ConflictLogEntry{
		MutationID: mutation.ID,
		Table:      mutation.Table,
		Resolution: strategy,
		ResolvedAt: time.Now(),
	}
	if details != nil {
		entry.Type = details.Type
		entry.Fields = details.Fields
	}
	appendConflictLog(entry)

	m.conflictMu.Lock()
	delete(m.lastConflicts, mutation.ID)
	m.conflictMu.Unlock()

	logger.Info("Conflict resolved",
		"mutation_id", mutation.ID,
		"table", mutation.Table,
		"resolution", string(strategy),
	)
}

// PendingConflicts returns the conflicts captured by the most recent sync
// pass, for UI display alongside the queue.
func (m *OfflineStorageManager) PendingConflicts() []ConflictDetails {
	m.conflictMu.Lock()
	defer m.conflictMu.Unlock()

	out := make([]ConflictDetails, 0, len(m.lastConflicts))
	for _, d := range m.lastConflicts {
		out = append(out, *d)
	}
	return out
}

// ============================================================================
// Status & utilities
// ============================================================================

// GetPendingSyncCount returns the number of queue entries not yet
// confirmed synced. A stalled entry stays visible here.
func (m *OfflineStorageManager) GetPendingSyncCount() (int, error) {
	queue, err := loadQueue()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range queue {
		if !entry.Synced {
			count++
		}
	}
	return count, nil
}

// PendingMutations returns the queue in enqueue order.
func (m *OfflineStorageManager) PendingMutations() ([]QueuedMutation, error) {
	return loadQueue()
}

// GetLastSyncTime returns when the last sync pass completed, or nil if no
// pass has run yet.
func (m *OfflineStorageManager) GetLastSyncTime() (*time.Time, error) {
	var t time.Time
	found, err := kvGet(kvLastSyncKey, &t)
	if err != nil || !found {
		return nil, err
	}
	return &t, nil
}

// IsOnline delegates to the network monitor.
func (m *OfflineStorageManager) IsOnline() bool {
	return m.network.IsOnline()
}

// OnNetworkStatusChange registers a connectivity listener and returns an
// unsubscribe function.
func (m *OfflineStorageManager) OnNetworkStatusChange(cb func(online bool)) func() {
	return m.network.Subscribe(cb)
}

// Readings returns locally cached blood pressure readings, most recent
// first, excluding soft-deleted records.
func (m *OfflineStorageManager) Readings() ([]Payload, error) {
	return activeSnapshots(TableReadings)
}

// SymptomEntries returns locally cached symptom entries.
func (m *OfflineStorageManager) SymptomEntries() ([]Payload, error) {
	return activeSnapshots(TableSymptoms)
}

// MedicationEntries returns locally cached medication entries.
func (m *OfflineStorageManager) MedicationEntries() ([]Payload, error) {
	return activeSnapshots(TableMedications)
}

// ExportBundle is a point-in-time backup of all offline state.
type ExportBundle struct {
	Queue             []QueuedMutation `json:"queue"`
	Readings          []Payload        `json:"readings"`
	SymptomEntries    []Payload        `json:"symptom_entries"`
	MedicationEntries []Payload        `json:"medication_entries"`
	LastSync          *time.Time       `json:"last_sync"`
}

// ExportOfflineData gathers all offline state for backup or support
// diagnostics.
func (m *OfflineStorageManager) ExportOfflineData() (*ExportBundle, error) {
	queue, err := loadQueue()
	if err != nil {
		return nil, err
	}
	readings, err := m.Readings()
	if err != nil {
		return nil, err
	}
	symptoms, err := m.SymptomEntries()
	if err != nil {
		return nil, err
	}
	medications, err := m.MedicationEntries()
	if err != nil {
		return nil, err
	}
	lastSync, err := m.GetLastSyncTime()
	if err != nil {
		return nil, err
	}

	return &ExportBundle{
		Queue:             queue,
		Readings:          readings,
		SymptomEntries:    symptoms,
		MedicationEntries: medications,
		LastSync:          lastSync,
	}, nil
}

// ClearOfflineData wipes the queue, snapshots, sync timestamp, and
// conflict log. Destructive: pending unsynced work is lost.
func (m *OfflineStorageManager) ClearOfflineData() error {
	m.conflictMu.Lock()
	m.lastConflicts = map[string]*ConflictDetails{}
	m.conflictMu.Unlock()

	return clearNamespace()
}
