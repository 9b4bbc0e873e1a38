// Package rowstore models the weakly typed tabular store attendance is kept in: named
// collections of positional rows, optionally partitioned, that support listing, appending
// and overwriting a single cell. There are no transactions and no compare-and-swap.
package rowstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable indicates the backing store could not be read or written.
	ErrUnavailable = errors.New("rowstore: store unavailable")
	// ErrRecordNotFound indicates an update addressed a row index outside the collection.
	ErrRecordNotFound = errors.New("rowstore: record not found")
	// ErrUnknownTable indicates a scope names a table without a registered layout.
	ErrUnknownTable = errors.New("rowstore: unknown table")
	// ErrUnknownField indicates an update names a column the layout does not define.
	ErrUnknownField = errors.New("rowstore: unknown field")
)

// Store is the minimal contract the attendance reconciler needs.
type Store interface {
	// ListRecords returns every row of the scope in insertion order.
	ListRecords(ctx context.Context, scope Scope) ([]Record, error)
	// AppendRecord writes one row after the last one and returns its 1-based index.
	AppendRecord(ctx context.Context, scope Scope, values map[string]string) (int, error)
	// UpdateField overwrites one cell of an existing row.
	UpdateField(ctx context.Context, scope Scope, row int, field, value string) error
}

// Scope addresses one collection. An empty Partition selects the combined table.
type Scope struct {
	Table     string
	Partition string
}

// String renders the scope for logs and sheet names.
func (s Scope) String() string {
	if s.Partition == "" {
		return s.Table
	}
	return s.Table + " " + s.Partition
}

// Record is a single row. Row is the 1-based position among data rows of the scope.
type Record struct {
	Row    int
	Values map[string]string
}

// Get returns the trimmed value of a field, or "" when absent.
func (r Record) Get(field string) string {
	return strings.TrimSpace(r.Values[field])
}

// Layout fixes the column order of a table. Updates address columns positionally.
type Layout struct {
	Table   string
	Columns []string
}

func (l Layout) columnIndex(field string) (int, bool) {
	for index, column := range l.Columns {
		if column == field {
			return index, true
		}
	}
	return -1, false
}

func (l Layout) toCells(values map[string]string) []string {
	cells := make([]string, len(l.Columns))
	for index, column := range l.Columns {
		cells[index] = values[column]
	}
	return cells
}

func (l Layout) toValues(cells []string) map[string]string {
	values := make(map[string]string, len(l.Columns))
	for index, column := range l.Columns {
		if index < len(cells) {
			values[column] = cells[index]
		} else {
			values[column] = ""
		}
	}
	return values
}

type layoutRegistry map[string]Layout

func newLayoutRegistry(layouts []Layout) (layoutRegistry, error) {
	registry := make(layoutRegistry, len(layouts))
	for _, layout := range layouts {
		table := strings.TrimSpace(layout.Table)
		if table == "" {
			return nil, fmt.Errorf("%w: empty table name", ErrUnknownTable)
		}
		if len(layout.Columns) == 0 {
			return nil, fmt.Errorf("rowstore: table %q has no columns", table)
		}
		registry[table] = layout
	}
	return registry, nil
}

func (r layoutRegistry) lookup(scope Scope) (Layout, error) {
	layout, ok := r[scope.Table]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownTable, scope.Table)
	}
	return layout, nil
}

func unavailable(operation string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, operation, cause)
}
