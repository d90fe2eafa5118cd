package engine

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-ledger/pkg/apperr"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

var testEntities = []schema.Entity{
	{
		Name: "suppliers",
		Fields: []schema.Field{
			{Name: "name", Type: schema.Text},
			{Name: "email", Type: schema.Text},
			{Name: "phone", Type: schema.Text},
			{Name: "credit_limit", Type: schema.Number},
			{Name: "bank_details", Type: schema.Compound},
		},
		Validators: map[string]string{"email": "validate_email", "phone": "validate_phone"},
	},
	{
		Name: "sales_orders",
		Fields: []schema.Field{
			{Name: "so_number", Type: schema.Text},
			{Name: "items", Type: schema.Compound},
			{Name: "total_amount", Type: schema.Number},
		},
	},
}

// skipWithoutFormat skips formats that cannot run in this build (sqlite
// without cgo).
func skipWithoutFormat(t *testing.T, f Format) {
	t.Helper()
	if f != SQLite {
		return
	}
	path := t.TempDir() + "/probe.db"
	if err := f.Write(path, []string{"a"}, nil); err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite format requires cgo")
	}
}

func newTestRegistry(t *testing.T, f Format) (*Registry, *Persistence) {
	t.Helper()
	skipWithoutFormat(t, f)

	p, err := NewPersistence(t.TempDir(), f)
	require.NoError(t, err)
	r, err := NewRegistry(p, testEntities, nil)
	require.NoError(t, err)
	return r, p
}

func lookup(t *testing.T, r *Registry, name string) *RecordStore {
	t.Helper()
	s, err := r.Lookup(name)
	require.NoError(t, err)
	return s
}

func TestNewRecordStore_CreatesHeaderOnlyFile(t *testing.T) {
	_, p := newTestRegistry(t, CSV)

	content, err := os.ReadFile(p.Path("suppliers"))
	require.NoError(t, err)
	assert.Equal(t, "name,email,phone,credit_limit,bank_details,id,created_at,updated_at\n", string(content))
}

func TestCreate(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	rec, err := s.Create(map[string]any{"name": "Acme", "email": "a@b.com", "phone": "12345678901"})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID())
	created, _ := rec.Get(schema.FieldCreatedAt)
	assert.NotEmpty(t, created)
	updated, ok := rec.Get(schema.FieldUpdatedAt)
	assert.True(t, ok)
	assert.Nil(t, updated)
	assert.Equal(t, []string{"name", "email", "phone", "id", "created_at", "updated_at"}, rec.Keys())

	other, err := s.Create(map[string]any{"name": "Beta"})
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID(), other.ID())

	tbl, err := s.Read()
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 2)

	got, _ := tbl.Find(rec.ID())
	v, _ := got.Get("credit_limit")
	assert.Equal(t, 0.0, v)
	v, _ = got.Get("bank_details")
	assert.Equal(t, Unknown, v)
	v, _ = got.Get(schema.FieldUpdatedAt)
	assert.Nil(t, v)
}

func TestCreate_ValidationFailureDoesNotWrite(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	_, err := s.Create(map[string]any{"name": "Acme", "email": "bad", "phone": "abc"})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, "Validation errors: Invalid email format, Invalid phone format", err.Error())

	tbl, err := s.Read()
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
}

func TestCreate_UndeclaredKeysBecomeColumns(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	first, err := s.Create(map[string]any{"name": "Acme", "rating": 4.5})
	require.NoError(t, err)
	second, err := s.Create(map[string]any{"name": "Beta"})
	require.NoError(t, err)

	tbl, err := s.Read()
	require.NoError(t, err)
	assert.True(t, tbl.HasColumn("rating"))

	got, _ := tbl.Find(first.ID())
	v, _ := got.Get("rating")
	assert.Equal(t, "4.5", v, "undeclared columns load as text")

	got, _ = tbl.Find(second.ID())
	v, _ = got.Get("rating")
	assert.Equal(t, Unknown, v)
}

func TestCreate_IgnoresCallerSystemFields(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")
	s.newID = func() string { return "fixed-id" }

	rec, err := s.Create(map[string]any{"name": "Acme", "id": "mine", "updated_at": "yesterday"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", rec.ID())
	v, _ := rec.Get(schema.FieldUpdatedAt)
	assert.Nil(t, v)
}

func TestUpdate_ChangesOnlyGivenField(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	rec, err := s.Create(map[string]any{"name": "Acme", "email": "a@b.com", "credit_limit": 1000.0})
	require.NoError(t, err)
	before, err := s.Find(rec.ID())
	require.NoError(t, err)

	after, err := s.Update(rec.ID(), map[string]any{"name": "Acme Ltd", "nickname": "ignored", "created_at": "x"})
	require.NoError(t, err)

	for _, k := range before.Keys() {
		want, _ := before.Get(k)
		got, _ := after.Get(k)
		switch k {
		case "name":
			assert.Equal(t, "Acme Ltd", got)
		case schema.FieldUpdatedAt:
			assert.NotNil(t, got)
		default:
			assert.Equal(t, want, got, "field %s changed", k)
		}
	}
	_, ok := after.Get("nickname")
	assert.False(t, ok)

	reloaded, err := s.Find(rec.ID())
	require.NoError(t, err)
	assert.Equal(t, after.Map(), reloaded.Map())
}

func TestUpdate_AdvancesUpdatedAt(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	stamps := []string{"2026-01-01T00:00:00.000Z", "2026-01-02T00:00:00.000Z", "2026-01-03T00:00:00.000Z"}
	i := 0
	s.now = func() time.Time {
		ts, _ := time.Parse(time.RFC3339, stamps[i])
		i++
		return ts
	}

	rec, err := s.Create(map[string]any{"name": "Acme"})
	require.NoError(t, err)
	first, err := s.Update(rec.ID(), map[string]any{"name": "A"})
	require.NoError(t, err)
	second, err := s.Update(rec.ID(), map[string]any{"name": "B"})
	require.NoError(t, err)

	created, _ := second.Get(schema.FieldCreatedAt)
	assert.Equal(t, stamps[0], created)
	u1, _ := first.Get(schema.FieldUpdatedAt)
	u2, _ := second.Get(schema.FieldUpdatedAt)
	assert.Equal(t, stamps[1], u1)
	assert.Equal(t, stamps[2], u2)
}

func TestUpdate_NotFoundLeavesTable(t *testing.T) {
	r, p := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	_, err := s.Create(map[string]any{"name": "Acme"})
	require.NoError(t, err)
	before, err := os.ReadFile(p.Path("suppliers"))
	require.NoError(t, err)

	_, err = s.Update("missing", map[string]any{"name": "X"})
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	after, err := os.ReadFile(p.Path("suppliers"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestUpdate_ValidationFailure(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	rec, err := s.Create(map[string]any{"name": "Acme", "email": "a@b.com"})
	require.NoError(t, err)

	_, err = s.Update(rec.ID(), map[string]any{"email": "nope"})
	assert.True(t, apperr.IsValidation(err))

	got, err := s.Find(rec.ID())
	require.NoError(t, err)
	v, _ := got.Get("email")
	assert.Equal(t, "a@b.com", v)
}

func TestDelete_Twice(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	keep, err := s.Create(map[string]any{"name": "Keep"})
	require.NoError(t, err)
	drop, err := s.Create(map[string]any{"name": "Drop"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(drop.ID()))
	err = s.Delete(drop.ID())
	assert.True(t, apperr.IsNotFound(err))

	tbl, err := s.Read()
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, keep.ID(), tbl.Rows[0].ID())
}

func TestCompoundRoundTrip(t *testing.T) {
	for _, f := range []Format{CSV, XLSX, SQLite} {
		t.Run(f.Name(), func(t *testing.T) {
			r, _ := newTestRegistry(t, f)
			s := lookup(t, r, "sales_orders")

			items := []any{
				map[string]any{"sku": "A1", "qty": 2.0, "price": 9.5},
				map[string]any{"sku": "B2", "qty": 1.0, "price": 120.0},
			}
			rec, err := s.Create(map[string]any{"so_number": "SO-1", "items": items, "total_amount": 139.0})
			require.NoError(t, err)

			got, err := s.Find(rec.ID())
			require.NoError(t, err)

			v, _ := got.Get("items")
			assert.Equal(t, items, v)
			v, _ = got.Get("total_amount")
			assert.Equal(t, 139.0, v)
			v, _ = got.Get("so_number")
			assert.Equal(t, "SO-1", v)
		})
	}
}

func TestTextFieldsKeepJSONLookingStrings(t *testing.T) {
	for _, f := range []Format{CSV, XLSX} {
		t.Run(f.Name(), func(t *testing.T) {
			r, _ := newTestRegistry(t, f)
			s := lookup(t, r, "suppliers")

			rec, err := s.Create(map[string]any{"name": `{"a":1}`})
			require.NoError(t, err)
			other, err := s.Create(map[string]any{"name": "[1]"})
			require.NoError(t, err)

			// An unrelated update rewrites every row.
			_, err = s.Update(other.ID(), map[string]any{"credit_limit": 10.0})
			require.NoError(t, err)

			tbl, err := s.Read()
			require.NoError(t, err)
			got, _ := tbl.Find(rec.ID())
			v, _ := got.Get("name")
			assert.Equal(t, `{"a":1}`, v)
			got, _ = tbl.Find(other.ID())
			v, _ = got.Get("name")
			assert.Equal(t, "[1]", v)
		})
	}
}

func TestRead_NormalizesMissingCells(t *testing.T) {
	r, p := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	// Older file: columns in a different order, bank_details missing.
	raw := "id,name,credit_limit,created_at,updated_at,email,phone\n" +
		"r1,,,2025-01-01T00:00:00.000Z,,x@y.com,\n"
	require.NoError(t, os.WriteFile(p.Path("suppliers"), []byte(raw), 0644))

	tbl, err := s.Read()
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"name", "email", "phone", "credit_limit", "bank_details", "id", "created_at", "updated_at"}, tbl.Columns)

	rec := tbl.Rows[0]
	want := map[string]any{
		"id":           "r1",
		"name":         Unknown,
		"email":        "x@y.com",
		"phone":        Unknown,
		"credit_limit": 0.0,
		"bank_details": Unknown,
		"created_at":   "2025-01-01T00:00:00.000Z",
		"updated_at":   nil,
	}
	assert.Equal(t, want, rec.Map())
}

func TestRead_MalformedCompoundIsAnError(t *testing.T) {
	r, p := newTestRegistry(t, CSV)
	s := lookup(t, r, "sales_orders")

	raw := "so_number,items,total_amount,id,created_at,updated_at\n" +
		"SO-1,\"[{\"\"sku\"\": \",10,r1,2025-01-01T00:00:00.000Z,\n"
	require.NoError(t, os.WriteFile(p.Path("sales_orders"), []byte(raw), 0644))

	_, err := s.Read()
	require.Error(t, err)
	assert.False(t, apperr.IsNotFound(err))
	assert.False(t, apperr.IsValidation(err))
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	r, _ := newTestRegistry(t, CSV)
	s := lookup(t, r, "suppliers")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Create(map[string]any{"name": fmt.Sprintf("supplier-%d", n)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tbl, err := s.Read()
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 20)
}
