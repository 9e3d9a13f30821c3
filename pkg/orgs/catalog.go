// Package orgs loads the catalog of organization names that meeting searches
// can be filtered by.
package orgs

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column is the header naming the organization column.
const Column = "Account"

// SourceFallback is reported by Catalog.Source when the built-in list is used.
const SourceFallback = "builtin"

// Catalog is an ordered, de-duplicated list of organization display names.
// It is immutable after construction.
type Catalog struct {
	names  []string
	index  map[string]struct{}
	source string
}

// NewCatalog trims names, drops empty values and keeps the first occurrence of
// each name.
func NewCatalog(source string, names []string) *Catalog {
	c := &Catalog{index: make(map[string]struct{}, len(names)), source: source}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := c.index[n]; dup {
			continue
		}
		c.index[n] = struct{}{}
		c.names = append(c.names, n)
	}
	return c
}

// Names returns the catalog entries in order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Contains reports whether name is exactly a catalog entry.
func (c *Catalog) Contains(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[name]
	return ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Source is the file the catalog came from, or SourceFallback.
func (c *Catalog) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Load reads the catalog at path and falls back to the built-in list when the
// file is missing, unreadable or has no entries.
func Load(path string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	names, err := ReadFile(path)
	if err == nil && len(names) > 0 {
		c := NewCatalog(path, names)
		if c.Len() > 0 {
			logger.Info("organization catalog loaded", "path", path, "count", c.Len())
			return c
		}
	}
	if err == nil {
		err = errors.New("no organizations found")
	}
	c := NewCatalog(SourceFallback, Fallback)
	logger.Warn("using built-in organization catalog", "path", path, "error", err, "count", c.Len())
	return c
}

// ReadFile returns the Account column of a CSV file or of the first sheet of
// an XLSX workbook that has one.
func ReadFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	}
}

// ReadCSV extracts the Account column from CSV data.
func ReadCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read organizations csv: %w", err)
	}
	return column(rows)
}

func readWorkbook(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open organizations workbook: %w", err)
	}
	defer f.Close()

	var lastErr error
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			lastErr = err
			continue
		}
		names, err := column(rows)
		if err != nil {
			lastErr = err
			continue
		}
		return names, nil
	}
	if lastErr == nil {
		lastErr = errors.New("workbook has no sheets")
	}
	return nil, fmt.Errorf("read organizations workbook: %w", lastErr)
}

func column(rows [][]string) ([]string, error) {
	if len(rows) == 0 {
		return nil, errors.New("no header row")
	}
	idx := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), Column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", Column)
	}
	names := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idx < len(row) {
			names = append(names, row[idx])
		}
	}
	return names, nil
}
