package models

import "context"

// ============================================================================
// Remote Data Facade
//
// The only surface the sync layer uses to reach the backend store:
// per-entity create, update, and soft-delete, each returning a typed
// success/error result. The facade is an external collaborator, injected
// into the Offline Storage Manager so tests can substitute a fake.
// ============================================================================

// Remote error codes. CONFLICT specifically marks a resolvable divergence,
// as opposed to a transient or validation failure.
const (
	RemoteCodeConflict    = "CONFLICT"
	RemoteCodeValidation  = "VALIDATION_ERROR"
	RemoteCodeNotFound    = "NOT_FOUND"
	RemoteCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// RemoteError is the typed error half of a facade result.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}

// IsConflict reports whether the error marks a resolvable conflict.
func (e *RemoteError) IsConflict() bool {
	return e != nil && e.Code == RemoteCodeConflict
}

// Result is the outcome of one facade operation. Exactly one of Data and
// Err is meaningful. On a CONFLICT error the backend may include the
// current server record in Data so the caller can resolve without another
// round trip.
type Result struct {
	Data Payload
	Err  *RemoteError
}

// OK reports facade-level success.
func (r Result) OK() bool {
	return r.Err == nil
}

// RemoteDataFacade is the backend data-access contract consumed by the
// sync layer. Implementations must tolerate a replayed insert whose prior
// attempt succeeded server-side: every insert payload carries a stable
// local_id for exactly that purpose.
type RemoteDataFacade interface {
	Create(ctx context.Context, table string, payload Payload) Result
	Update(ctx context.Context, table, id string, payload Payload) Result
	SoftDelete(ctx context.Context, table, id string) Result
}
