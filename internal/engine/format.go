package engine

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xuri/excelize/v2"
)

// Format reads and writes one entity table as a header row plus string
// cells. Typing is left to the record store.
type Format interface {
	Name() string
	Ext() string
	Read(path string) (header []string, rows [][]string, err error)
	// Write replaces whatever is at path.
	Write(path string, header []string, rows [][]string) error
}

// ParseFormat returns the table format with the given name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown table format %q", name)
}

var (
	CSV    Format = csvFormat{}
	XLSX   Format = xlsxFormat{}
	SQLite Format = sqliteFormat{}
)

// --- CSV ---

type csvFormat struct{}

func (csvFormat) Name() string { return "csv" }
func (csvFormat) Ext() string  { return ".csv" }

func (csvFormat) Read(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}

func (csvFormat) Write(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --- XLSX ---

// xlsxFormat keeps the table on the first worksheet of a workbook.
type xlsxFormat struct{}

const xlsxSheet = "Sheet1"

func (xlsxFormat) Name() string { return "xlsx" }
func (xlsxFormat) Ext() string  { return ".xlsx" }

func (xlsxFormat) Read(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, nil, nil
	}
	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func (xlsxFormat) Write(path string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &vals); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// --- SQLite ---

// sqliteFormat stores the table as a single "records" table of TEXT
// columns. Every write rebuilds the database file from scratch.
type sqliteFormat struct{}

const sqliteTable = "records"

func (sqliteFormat) Name() string { return "sqlite" }
func (sqliteFormat) Ext() string  { return ".db" }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteFormat) Read(path string) ([]string, [][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	rs, err := db.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quoteIdent(sqliteTable)))
	if err != nil {
		return nil, nil, err
	}
	defer rs.Close()

	header, err := rs.Columns()
	if err != nil {
		return nil, nil, err
	}

	var rows [][]string
	for rs.Next() {
		cells := make([]sql.NullString, len(header))
		ptrs := make([]any, len(header))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(header))
		for i, c := range cells {
			row[i] = c.String
		}
		rows = append(rows, row)
	}
	return header, rows, rs.Err()
}

func (sqliteFormat) Write(path string, header []string, rows [][]string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	cols := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h) + " TEXT"
		marks[i] = "?"
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(sqliteTable), strings.Join(cols, ", "))); err != nil {
		return err
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(sqliteTable), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for _, row := range rows {
		for i := range args {
			args[i] = ""
			if i < len(row) {
				args[i] = row[i]
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}
