package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Registry maps entity names to their record stores. It is built once and
// never modified, so lookups need no locking.
type Registry struct {
	stores map[string]*RecordStore
	names  []string
}

// NewRegistry compiles every entity definition and opens its store. Any
// invalid definition aborts construction.
func NewRegistry(p *Persistence, entities []schema.Entity, logger *slog.Logger) (*Registry, error) {
	r := &Registry{stores: make(map[string]*RecordStore, len(entities))}
	for _, e := range entities {
		if _, exists := r.stores[e.Name]; exists {
			return nil, fmt.Errorf("entity %q already registered", e.Name)
		}
		s, err := Compile(e)
		if err != nil {
			return nil, err
		}
		store, err := NewRecordStore(s, p, logger)
		if err != nil {
			return nil, err
		}
		r.stores[e.Name] = store
		r.names = append(r.names, e.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the store registered for name.
func (r *Registry) Lookup(name string) (*RecordStore, error) {
	s, ok := r.stores[name]
	if !ok {
		return nil, apperr.NewUnknownResourceError(name)
	}
	return s, nil
}

// Names returns the registered entity names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
