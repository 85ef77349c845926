package models

import (
	"time"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// Offline Mutation Queue
//
// The queue is one msgpack-encoded list under a single store key. Entries
// are appended in mutation order and replayed FIFO; each entry is
// independent; there is no cross-entry transactionality. An entry stays
// queued until its sync is confirmed or conflict resolution discards it.
// ============================================================================

// QueuedMutation is one pending local change awaiting confirmation against
// the remote store.
type QueuedMutation struct {
	ID        string    `json:"id" msgpack:"id"`
	Table     string    `json:"table" msgpack:"table"`
	Action    int32     `json:"action" msgpack:"action"`
	Payload   Payload   `json:"payload" msgpack:"payload"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	Synced    bool      `json:"synced" msgpack:"synced"`
	Conflict  bool      `json:"conflict" msgpack:"conflict"`
}

// loadQueue reads the full queue in enqueue order.
// An absent key is an empty queue, not an error.
func loadQueue() ([]QueuedMutation, error) {
	var queue []QueuedMutation
	found, err := kvGet(kvQueueKey, &queue)
	if err != nil {
		return nil, serr.Wrap(err, "failed to load offline queue")
	}
	if !found {
		return []QueuedMutation{}, nil
	}
	return queue, nil
}

// saveQueue persists the queue, replacing the stored list.
func saveQueue(queue []QueuedMutation) error {
	if queue == nil {
		queue = []QueuedMutation{}
	}
	if err := kvPut(kvQueueKey, queue); err != nil {
		return serr.Wrap(err, "failed to save offline queue")
	}
	return nil
}

// appendToQueue adds a mutation at the tail.
func appendToQueue(m QueuedMutation) error {
	rmwMu.Lock()
	defer rmwMu.Unlock()

	queue, err := loadQueue()
	if err != nil {
		return err
	}
	queue = append(queue, m)
	return saveQueue(queue)
}

// removeFromQueue drops the entry with the given id. Position of the
// remaining entries is unchanged.
func removeFromQueue(id string) error {
	rmwMu.Lock()
	defer rmwMu.Unlock()

	queue, err := loadQueue()
	if err != nil {
		return err
	}

	kept := queue[:0]
	for _, m := range queue {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	return saveQueue(kept)
}

// updateQueued replaces the entry with the same id in place, preserving
// queue position so retries replay in original order.
func updateQueued(updated QueuedMutation) error {
	rmwMu.Lock()
	defer rmwMu.Unlock()

	queue, err := loadQueue()
	if err != nil {
		return err
	}

	for i := range queue {
		if queue[i].ID == updated.ID {
			queue[i] = updated
			return saveQueue(queue)
		}
	}
	return serr.New("queued mutation not found: " + updated.ID)
}

// findQueued returns the entry with the given id, or nil.
func findQueued(id string) (*QueuedMutation, error) {
	queue, err := loadQueue()
	if err != nil {
		return nil, err
	}
	for i := range queue {
		if queue[i].ID == id {
			m := queue[i]
			return &m, nil
		}
	}
	return nil, nil
}
