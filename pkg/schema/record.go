// Package schema defines the data structures shared by the ledger engine, the
// gateways and the SDK: records and entity definitions.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Columns carried by every record in addition to its entity fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// SystemFields lists the standard columns in on-disk order.
var SystemFields = []string{FieldID, FieldCreatedAt, FieldUpdatedAt}

// IsSystemField reports whether name is one of the standard columns.
func IsSystemField(name string) bool {
	switch name {
	case FieldID, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// Record is one row of an entity table: an ordered mapping from field name to
// value. Values are JSON-shaped: string, float64, bool, nil, []any or
// map[string]any.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set stores val under key. New keys are appended; existing keys keep their
// position.
func (r *Record) Set(key string, val any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = val
}

// Keys returns the field names in order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.keys) }

// ID returns the record id, or "" when it is missing or not a string.
func (r *Record) ID() string {
	id, _ := r.values[FieldID].(string)
	return id
}

// Map returns an unordered copy of the record.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone returns a copy sharing nested compound values.
func (r *Record) Clone() *Record {
	return &Record{keys: r.Keys(), values: r.Map()}
}

// MarshalJSON writes the fields in record order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping the document's key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected JSON object, got %v", tok)
	}

	r.keys = nil
	r.values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key token %v", tok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("record: field %s: %w", key, err)
		}
		r.Set(key, val)
	}

	_, err = dec.Token()
	return err
}
