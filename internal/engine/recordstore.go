package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/celerix-dev/celerix-ledger/internal/validate"
	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// RecordStore owns one entity table. Every call re-reads the backing file
// and every mutation rewrites it in full.
//
// Mutations hold mu across their read-modify-write cycle, so writers within
// one process never lose each other's updates. Separate processes sharing a
// data directory are not coordinated: the later save wins.
type RecordStore struct {
	schema    *Schema
	persister *Persistence
	logger    *slog.Logger

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// NewRecordStore binds a compiled schema to its table file, creating a
// header-only file when none exists.
func NewRecordStore(s *Schema, p *Persistence, logger *slog.Logger) (*RecordStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := p.Ensure(s.Entity, s.Header()); err != nil {
		return nil, fmt.Errorf("failed to initialize table %s: %w", s.Entity, err)
	}
	return &RecordStore{
		schema:    s,
		persister: p,
		logger:    logger.With("entity", s.Entity),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

// Name returns the entity name.
func (s *RecordStore) Name() string { return s.schema.Entity }

// Schema returns the compiled entity schema.
func (s *RecordStore) Schema() *Schema { return s.schema }

func (s *RecordStore) timestamp() string {
	return strfmt.DateTime(s.now()).String()
}

// normalize fills a missing cell with its column default. updated_at stays
// null until the record's first update.
func (s *RecordStore) normalize(col string, v any) any {
	if v != nil || col == schema.FieldUpdatedAt {
		return v
	}
	return defaultFor(s.schema.TypeOf(col))
}

// Read loads the table, decoding compound cells and filling missing ones.
func (s *RecordStore) Read() (*Table, error) {
	header, rows, err := s.persister.Load(s.schema.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.schema.Entity, err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	t := &Table{Columns: mergeColumns(s.schema.Header(), header)}
	for n, row := range rows {
		if blank(row) {
			continue
		}
		rec := schema.NewRecord()
		for _, col := range t.Columns {
			raw := ""
			if i, ok := pos[col]; ok && i < len(row) {
				raw = row[i]
			}
			v, err := decodeCell(s.schema.TypeOf(col), raw)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %s: %w", s.schema.Entity, n+1, col, err)
			}
			rec.Set(col, s.normalize(col, v))
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}

// Write encodes every row and replaces the table file.
func (s *RecordStore) Write(t *Table) error {
	header := mergeColumns(s.schema.Header(), t.Columns)
	rows := make([][]string, len(t.Rows))
	for i, rec := range t.Rows {
		row := make([]string, len(header))
		for j, col := range header {
			v, _ := rec.Get(col)
			cell, err := encodeCell(s.schema.TypeOf(col), v)
			if err != nil {
				return fmt.Errorf("%s row %d column %s: %w", s.schema.Entity, i+1, col, err)
			}
			row[j] = cell
		}
		rows[i] = row
	}
	if err := s.persister.Save(s.schema.Entity, header, rows); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.schema.Entity, err)
	}
	return nil
}

// Validate checks every field of data that has a validator and returns one
// message per failing field. Absent fields are not checked.
func (s *RecordStore) Validate(data map[string]any) []string {
	var problems []string
	for _, k := range sortedKeys(data) {
		col, ok := s.schema.Column(k)
		if !ok || col.Validator == "" {
			continue
		}
		if !validate.Check(col.Validator, data[k]) {
			problems = append(problems, fmt.Sprintf("Invalid %s format", k))
		}
	}
	return problems
}

func (s *RecordStore) check(data map[string]any) error {
	if problems := s.Validate(data); len(problems) > 0 {
		return apperr.NewValidationError(s.schema.Entity, problems)
	}
	return nil
}

// Find returns the record with the given id.
func (s *RecordStore) Find(id string) (*schema.Record, error) {
	t, err := s.Read()
	if err != nil {
		return nil, err
	}
	rec, ok := t.Find(id)
	if !ok {
		return nil, apperr.NewNotFoundError(s.schema.Entity, id)
	}
	return rec, nil
}

// Create validates data and appends it as a new record with a fresh id.
// Keys that are not declared fields are kept and become new columns.
func (s *RecordStore) Create(data map[string]any) (*schema.Record, error) {
	if err := s.check(data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Read()
	if err != nil {
		return nil, err
	}

	rec := schema.NewRecord()
	for _, k := range columnOrder(t.Columns, data) {
		if k == "" || schema.IsSystemField(k) {
			continue
		}
		rec.Set(k, data[k])
		t.addColumn(k)
	}
	rec.Set(schema.FieldID, s.newID())
	rec.Set(schema.FieldCreatedAt, s.timestamp())
	rec.Set(schema.FieldUpdatedAt, nil)

	t.Rows = append(t.Rows, rec)
	if err := s.Write(t); err != nil {
		return nil, err
	}

	s.logger.Debug("record created", "id", rec.ID())
	return rec, nil
}

// Update overwrites the fields of data that are existing columns of the
// table. Other keys, and the standard columns, are ignored.
func (s *RecordStore) Update(id string, data map[string]any) (*schema.Record, error) {
	if err := s.check(data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Read()
	if err != nil {
		return nil, err
	}
	rec, ok := t.Find(id)
	if !ok {
		return nil, apperr.NewNotFoundError(s.schema.Entity, id)
	}

	for _, k := range sortedKeys(data) {
		if schema.IsSystemField(k) || !t.HasColumn(k) {
			continue
		}
		rec.Set(k, data[k])
	}
	rec.Set(schema.FieldUpdatedAt, s.timestamp())

	if err := s.Write(t); err != nil {
		return nil, err
	}

	s.logger.Debug("record updated", "id", id)
	return rec, nil
}

// Delete removes the record with the given id.
func (s *RecordStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Read()
	if err != nil {
		return err
	}
	i := t.Index(id)
	if i < 0 {
		return apperr.NewNotFoundError(s.schema.Entity, id)
	}
	t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)

	if err := s.Write(t); err != nil {
		return err
	}

	s.logger.Debug("record deleted", "id", id)
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// columnOrder lists the keys of data in table column order, followed by the
// remaining keys sorted by name.
func columnOrder(columns []string, data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for _, c := range columns {
		if _, ok := data[c]; ok {
			keys = append(keys, c)
		}
	}
	for _, k := range sortedKeys(data) {
		if !contains(columns, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
