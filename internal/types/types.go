// Package types provides domain models shared across rules-engine components.
//
// Zero-dependency design: value.go, rules.go and errors.go use only the standard
// library so the core compiler can be embedded without pulling in service deps.
// ID utilities in ids.go import uuid but are isolated for selective inclusion.
//
// Wire types live at the edges (structpb in internal/core/api, JSON in the
// loader and HTTP layer). This package holds the hand-written shapes the
// compiler and the evaluation driver operate on.
package types

import (
	"strconv"
)

// RecordIDField is the record field that carries the record identifier.
const RecordIDField = "id"

// Record is one input being classified.
// Fields is the whole document, including the id field, and is what match
// predicates and templates see.
type Record struct {
	ID     string
	Fields Value
}

// NewRecord builds a Record from an object value, reading ID from its id field.
// String ids are used as-is, numeric ids are formatted without exponent.
// Returns ErrMissingRecordID when the field is absent or not a string/number.
func NewRecord(fields Value) (Record, error) {
	id := fields.Field(RecordIDField)
	switch id.Kind() {
	case KindString:
		s, _ := id.AsString()
		return Record{ID: s, Fields: fields}, nil
	case KindNumber:
		n, _ := id.AsNumber()
		return Record{ID: strconv.FormatFloat(n, 'f', -1, 64), Fields: fields}, nil
	default:
		return Record{}, ErrMissingRecordID
	}
}

// RecordFromAny converts a decoded document or Go struct and wraps it as a Record.
func RecordFromAny(x any) (Record, error) {
	v, err := FromAny(x)
	if err != nil {
		return Record{}, err
	}
	return NewRecord(v)
}

// MustRecord is RecordFromAny for literals. Panics on error.
func MustRecord(x any) Record {
	r, err := RecordFromAny(x)
	if err != nil {
		panic(err)
	}
	return r
}

// Resource limits enforced at the service boundary.
const (
	// MaxBatchRecords caps records per evaluation request when the service
	// config does not set a smaller limit.
	MaxBatchRecords = 10_000

	// MaxRuleDocumentSize bounds a single rule file read by the loader.
	MaxRuleDocumentSize = 8 * 1024 * 1024
)
