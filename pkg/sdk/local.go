package sdk

import (
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Local serves the Ledger interface from an in-process registry.
type Local struct {
	registry *engine.Registry
}

// NewLocal wraps a registry.
func NewLocal(r *engine.Registry) *Local {
	return &Local{registry: r}
}

// Registry exposes the underlying registry.
func (l *Local) Registry() *engine.Registry { return l.registry }

func (l *Local) Entities() ([]string, error) {
	return l.registry.Names(), nil
}

func (l *Local) List(entity string) ([]*schema.Record, error) {
	s, err := l.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	t, err := s.Read()
	if err != nil {
		return nil, err
	}
	if t.Rows == nil {
		return []*schema.Record{}, nil
	}
	return t.Rows, nil
}

func (l *Local) Get(entity, id string) (*schema.Record, error) {
	s, err := l.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	return s.Find(id)
}

func (l *Local) Create(entity string, data map[string]any) (*schema.Record, error) {
	s, err := l.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	return s.Create(data)
}

func (l *Local) Update(entity, id string, data map[string]any) (*schema.Record, error) {
	s, err := l.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	return s.Update(id, data)
}

func (l *Local) Delete(entity, id string) error {
	s, err := l.registry.Lookup(entity)
	if err != nil {
		return err
	}
	return s.Delete(id)
}
