package models

import (
	"time"

	"github.com/google/uuid"
)

// Payload is the loosely-typed record form that flows through the offline
// queue. Keys are the entity's column names; values arrive from JSON or
// msgpack decoding, so numbers may surface as any integer or float width.
// All reads should go through the payload* helpers below.
type Payload map[string]any

// GenerateLocalID creates a unique identifier for locally-created records.
// The local id stays stable across sync retries so the backend can detect
// a replayed insert.
func GenerateLocalID() string {
	return uuid.New().String()
}

// Clone returns a shallow copy of the payload. Queue entries and conflict
// details hold their own copies so callers can't mutate queued state.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// payloadString extracts a string field. Returns "" and false when the field
// is absent, nil, or not a string.
func payloadString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// payloadNumber extracts a numeric field as float64. JSON decoding yields
// float64, msgpack yields sized ints, so every width is accepted.
func payloadNumber(p Payload, key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// payloadBool extracts a boolean field.
func payloadBool(p Payload, key string) (bool, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// payloadTime extracts a timestamp field. Accepts time.Time (msgpack round
// trip) or an RFC3339 string (JSON, and the wire format of the backend).
func payloadTime(p Payload, key string) (time.Time, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// payloadFieldsEqual compares one field across two payloads, normalizing
// numeric widths and timestamps so a msgpack round trip doesn't register
// as a divergence.
func payloadFieldsEqual(a, b Payload, key string) bool {
	av, aok := a[key]
	bv, bok := b[key]
	if !aok && !bok {
		return true
	}
	if av == nil && bv == nil {
		return true
	}
	if av == nil || bv == nil {
		return false
	}

	if an, ok := payloadNumber(a, key); ok {
		bn, ok := payloadNumber(b, key)
		return ok && an == bn
	}
	if at, ok := payloadTime(a, key); ok {
		bt, ok := payloadTime(b, key)
		return ok && at.Equal(bt)
	}

	return av == bv
}
