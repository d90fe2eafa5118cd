// Package engine implements the ledger's record stores: typed tables loaded
// from and saved to one file per entity.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persistence handles the disk I/O for the record stores
type Persistence struct {
	DataDir string
	Format  Format
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string, format Format) (*Persistence, error) {
	if format == nil {
		format = CSV
	}
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir, Format: format}, nil
}

// Path returns the file backing an entity table.
func (p *Persistence) Path(entity string) string {
	return filepath.Join(p.DataDir, entity+p.Format.Ext())
}

// Ensure creates a header-only table file for entity if none exists yet.
func (p *Persistence) Ensure(entity string, header []string) error {
	if _, err := os.Stat(p.Path(entity)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return p.Save(entity, header, nil)
}

// Load reads an entity table.
func (p *Persistence) Load(entity string) ([]string, [][]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.Format.Read(p.Path(entity))
}

// Save replaces an entity table atomically.
func (p *Persistence) Save(entity string, header []string, rows [][]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := p.Path(entity)
	// The temp name keeps the extension; some formats check it.
	tempPath := filepath.Join(p.DataDir, fmt.Sprintf(".%s.tmp%s", entity, p.Format.Ext()))

	// 1. Write to a temporary file first
	if err := p.Format.Write(tempPath, header, rows); err != nil {
		os.Remove(tempPath)
		return err
	}

	// 2. Atomic Rename
	// Readers see either the old table or the new one, never a partial write.
	return os.Rename(tempPath, filePath)
}
