package sdk

import (
	"encoding/json"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// --- Functional Interfaces (Interface Segregation) ---

// Reader defines the read operations of the ledger.
type Reader interface {
	// Entities returns the registered entity names.
	Entities() ([]string, error)
	// List returns every record of an entity.
	List(entity string) ([]*schema.Record, error)
	// Get returns one record by id.
	Get(entity, id string) (*schema.Record, error)
}

// Writer defines the mutating operations of the ledger.
type Writer interface {
	Create(entity string, data map[string]any) (*schema.Record, error)
	Update(entity, id string, data map[string]any) (*schema.Record, error)
	Delete(entity, id string) error
}

// --- Composite Interfaces ---

// Ledger is the primary interface for interacting with the record stores.
// Both the embedded engine and the remote network client implement it.
type Ledger interface {
	Reader
	Writer
}

// --- Generics Support ---

// GetAs retrieves a record and decodes it into T using its JSON field names.
func GetAs[T any](r Reader, entity, id string) (T, error) {
	var target T
	rec, err := r.Get(entity, id)
	if err != nil {
		return target, err
	}
	return decodeRecord[T](rec)
}

// ListAs retrieves every record of an entity decoded into T.
func ListAs[T any](r Reader, entity string) ([]T, error) {
	recs, err := r.List(entity)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := decodeRecord[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeRecord re-marshals a record into the caller's type. Slow, but it
// keeps the record model free of per-entity structs.
func decodeRecord[T any](rec *schema.Record) (T, error) {
	var target T
	bytes, err := json.Marshal(rec)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}
