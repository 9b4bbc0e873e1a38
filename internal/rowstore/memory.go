package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps rows in process memory. It backs development runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	layouts layoutRegistry
	rows    map[Scope][][]string
}

// NewMemoryStore constructs an empty store for the given layouts.
func NewMemoryStore(layouts ...Layout) (*MemoryStore, error) {
	registry, err := newLayoutRegistry(layouts)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		layouts: registry,
		rows:    make(map[Scope][][]string),
	}, nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, scope Scope) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.rows[scope]
	records := make([]Record, 0, len(stored))
	for index, cells := range stored {
		records = append(records, Record{Row: index + 1, Values: layout.toValues(cells)})
	}
	return records, nil
}

func (s *MemoryStore) AppendRecord(ctx context.Context, scope Scope, values map[string]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("append", err)
	}
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[scope] = append(s.rows[scope], layout.toCells(values))
	return len(s.rows[scope]), nil
}

func (s *MemoryStore) UpdateField(ctx context.Context, scope Scope, row int, field, value string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("update", err)
	}
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return err
	}
	column, ok := layout.columnIndex(field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.rows[scope]
	if row < 1 || row > len(stored) {
		return fmt.Errorf("%w: %s row %d", ErrRecordNotFound, scope, row)
	}
	stored[row-1][column] = value
	return nil
}
