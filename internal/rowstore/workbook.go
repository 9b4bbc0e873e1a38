package rowstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetNameLength = 31
	headerRowCount     = 1
	defaultSheetName   = "Sheet1"
)

// WorkbookStore keeps each scope in its own worksheet of an xlsx file. The first row of
// every sheet is a header; data row N lives on sheet row N+1. Sheets are created lazily on
// the first append, so per-day partitions appear as the day's first visitor checks in.
type WorkbookStore struct {
	mu      sync.Mutex
	path    string
	file    *excelize.File
	layouts layoutRegistry
}

// OpenWorkbookStore opens the workbook at path, creating an empty one if it does not exist.
func OpenWorkbookStore(path string, layouts ...Layout) (*WorkbookStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rowstore: workbook path is required")
	}
	registry, err := newLayoutRegistry(layouts)
	if err != nil {
		return nil, err
	}

	var file *excelize.File
	if _, statErr := os.Stat(path); statErr == nil {
		file, err = excelize.OpenFile(path)
		if err != nil {
			return nil, unavailable("open", err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		file = excelize.NewFile()
		if err := file.SaveAs(path); err != nil {
			return nil, unavailable("create", err)
		}
	} else {
		return nil, unavailable("stat", statErr)
	}

	return &WorkbookStore{path: path, file: file, layouts: registry}, nil
}

// Close releases the underlying workbook.
func (s *WorkbookStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *WorkbookStore) ListRecords(ctx context.Context, scope Scope) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return nil, err
	}
	sheet, err := sheetName(scope)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSheet(sheet) {
		return []Record{}, nil
	}
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return nil, unavailable("list", err)
	}

	records := make([]Record, 0, len(rows))
	for index := headerRowCount; index < len(rows); index++ {
		records = append(records, Record{
			Row:    index - headerRowCount + 1,
			Values: layout.toValues(rows[index]),
		})
	}
	return records, nil
}

func (s *WorkbookStore) AppendRecord(ctx context.Context, scope Scope, values map[string]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("append", err)
	}
	layout, err := s.layouts.lookup(scope)
	if err != nil {
		return 0, err
	}
	sheet, err := sheetName(scope)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSheet(sheet, layout); err != nil {
		return 0, err
	}
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return 0, unavailable("append", err)
	}
	sheetRow := len(rows) + 1
	if sheetRow <= headerRowCount {
		sheetRow = headerRowCount + 1
	}
	anchor, err := excelize.CoordinatesToCellName(1, sheetRow)
	if err != nil {
		return 0, unavailable("append", err)
	}
	cells := layout.toCells(values)
	if err := s.file.SetSheetRow(sheet, anchor, &cells); err != nil {
		return 0, unavailable("append", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return 0, unavailable("save", err)
	}
	return sheetRow - headerRowCount, nil
}

func (s *WorkbookStore) UpdateField(ctx context.Context, scope Scope, row int, field, value string) error {
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
	sheet, err := sheetName(scope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSheet(sheet) {
		return fmt.Errorf("%w: %s row %d", ErrRecordNotFound, scope, row)
	}
	rows, err := s.file.GetRows(sheet)
	if err != nil {
		return unavailable("update", err)
	}
	if row < 1 || row+headerRowCount > len(rows) {
		return fmt.Errorf("%w: %s row %d", ErrRecordNotFound, scope, row)
	}
	cell, err := excelize.CoordinatesToCellName(column+1, row+headerRowCount)
	if err != nil {
		return unavailable("update", err)
	}
	if err := s.file.SetCellValue(sheet, cell, value); err != nil {
		return unavailable("update", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return unavailable("save", err)
	}
	return nil
}

func (s *WorkbookStore) hasSheet(sheet string) bool {
	for _, existing := range s.file.GetSheetList() {
		if existing == sheet {
			return true
		}
	}
	return false
}

func (s *WorkbookStore) ensureSheet(sheet string, layout Layout) error {
	if s.hasSheet(sheet) {
		return nil
	}
	if _, err := s.file.NewSheet(sheet); err != nil {
		return unavailable("create sheet", err)
	}
	header := append([]string(nil), layout.Columns...)
	if err := s.file.SetSheetRow(sheet, "A1", &header); err != nil {
		return unavailable("write header", err)
	}
	if s.hasSheet(defaultSheetName) && sheet != defaultSheetName {
		if rows, err := s.file.GetRows(defaultSheetName); err == nil && len(rows) == 0 {
			s.file.DeleteSheet(defaultSheetName)
		}
	}
	return nil
}

func sheetName(scope Scope) (string, error) {
	name := scope.String()
	if len(name) > maxSheetNameLength {
		return "", fmt.Errorf("rowstore: sheet name %q exceeds %d characters", name, maxSheetNameLength)
	}
	return name, nil
}
