package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

const (
	queryScope         = "collection = ? AND partition_key = ?"
	queryScopePosition = "collection = ? AND partition_key = ? AND position = ?"
	orderPositionAsc   = "position ASC"
)

// StoredRow persists one positional row of a collection.
type StoredRow struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Collection string `gorm:"column:collection;size:64;not null;uniqueIndex:idx_row_store_position,priority:1"`
	Partition  string `gorm:"column:partition_key;size:64;not null;default:'';uniqueIndex:idx_row_store_position,priority:2"`
	Position   int    `gorm:"column:position;not null;uniqueIndex:idx_row_store_position,priority:3"`
	CellsJSON  string `gorm:"column:cells_json;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredRow) TableName() string {
	return "row_store_rows"
}

// StoredRowCounter holds the last position handed out in a scope. Appends increment it
// with an UPDATE, so the row lock serializes concurrent appenders of one scope.
type StoredRowCounter struct {
	Collection   string `gorm:"column:collection;size:64;primaryKey"`
	Partition    string `gorm:"column:partition_key;size:64;primaryKey"`
	LastPosition int    `gorm:"column:last_position;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredRowCounter) TableName() string {
	return "row_store_counters"
}

// seedCounter creates the scope counter at the highest stored position. Rows written before
// counters existed keep their positions.
const seedCounter = `INSERT INTO row_store_counters (collection, partition_key, last_position)
SELECT ?, ?, COALESCE(MAX(position), 0) FROM row_store_rows WHERE collection = ? AND partition_key = ?
ON CONFLICT (collection, partition_key) DO NOTHING`

// DatabaseStore keeps collections in a relational table, one database row per store row.
type DatabaseStore struct {
	db      *gorm.DB
	layouts layoutRegistry
}

// NewDatabaseStore binds the store to an already migrated database handle.
func NewDatabaseStore(db *gorm.DB, layouts ...Layout) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("rowstore: database handle is required")
	}
	registry, err := newLayoutRegistry(layouts)
	if err != nil {
		return nil, err
	}
	return &DatabaseStore{db: db, layouts: registry}, nil
}

func (s *DatabaseStore) ListRecords(ctx context.Context, scope Scope) ([]Record, error) {
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return nil, err
	}

	var stored []StoredRow
	if err := s.db.WithContext(ctx).
		Where(queryScope, scope.Table, scope.Partition).
		Order(orderPositionAsc).
		Find(&stored).Error; err != nil {
		return nil, unavailable("list", err)
	}

	records := make([]Record, 0, len(stored))
	for _, row := range stored {
		cells, err := decodeCells(row.CellsJSON)
		if err != nil {
			return nil, unavailable("decode", err)
		}
		records = append(records, Record{Row: row.Position, Values: layout.toValues(cells)})
	}
	return records, nil
}

func (s *DatabaseStore) AppendRecord(ctx context.Context, scope Scope, values map[string]string) (int, error) {
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return 0, err
	}
	encoded, err := json.Marshal(layout.toCells(values))
	if err != nil {
		return 0, fmt.Errorf("rowstore: encode cells: %w", err)
	}

	var position int
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(seedCounter, scope.Table, scope.Partition, scope.Table, scope.Partition).Error; err != nil {
			return err
		}
		if err := tx.Model(&StoredRowCounter{}).
			Where(queryScope, scope.Table, scope.Partition).
			UpdateColumn("last_position", gorm.Expr("last_position + 1")).Error; err != nil {
			return err
		}
		var counter StoredRowCounter
		if err := tx.Where(queryScope, scope.Table, scope.Partition).Take(&counter).Error; err != nil {
			return err
		}
		position = counter.LastPosition
		return tx.Create(&StoredRow{
			Collection: scope.Table,
			Partition:  scope.Partition,
			Position:   position,
			CellsJSON:  string(encoded),
		}).Error
	})
	if txErr != nil {
		return 0, unavailable("append", txErr)
	}
	return position, nil
}

func (s *DatabaseStore) UpdateField(ctx context.Context, scope Scope, row int, field, value string) error {
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return err
	}
	column, ok := layout.columnIndex(field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored StoredRow
		err := tx.Where(queryScopePosition, scope.Table, scope.Partition, row).Take(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s row %d", ErrRecordNotFound, scope, row)
		}
		if err != nil {
			return unavailable("update", err)
		}

		cells, err := decodeCells(stored.CellsJSON)
		if err != nil {
			return unavailable("decode", err)
		}
		for len(cells) < len(layout.Columns) {
			cells = append(cells, "")
		}
		cells[column] = value
		encoded, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("rowstore: encode cells: %w", err)
		}
		if err := tx.Model(&StoredRow{}).
			Where("id = ?", stored.ID).
			Update("cells_json", string(encoded)).Error; err != nil {
			return unavailable("update", err)
		}
		return nil
	})
	if txErr != nil && !errors.Is(txErr, ErrRecordNotFound) && !errors.Is(txErr, ErrUnavailable) {
		return unavailable("update", txErr)
	}
	return txErr
}

func decodeCells(raw string) ([]string, error) {
	var cells []string
	if raw == "" {
		return cells, nil
	}
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, err
	}
	return cells, nil
}
