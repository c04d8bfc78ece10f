package services

import (
	"context"
	"fmt"
	"sort"

	"bitableTimesheet/internal/bitable"
)

// FirstRecordReader reads the first row of a table.
type FirstRecordReader interface {
	FirstRecord(ctx context.Context, table bitable.TableRef) (*bitable.Record, error)
}

// RecordDump is the raw first row of a table, for discovering column names.
type RecordDump struct {
	Table      string                       `json:"table"`
	RecordID   string                       `json:"record_id"`
	FieldNames []string                     `json:"field_names"`
	Fields     map[string]bitable.CellValue `json:"fields"`
	Normalized map[string]string            `json:"normalized"`
}

// DebugService dumps table contents for setup.
type DebugService struct {
	records FirstRecordReader
}

func NewDebugService(records FirstRecordReader) *DebugService {
	return &DebugService{records: records}
}

// FirstRecord dumps the first row of table. An empty table yields an empty dump.
func (s *DebugService) FirstRecord(ctx context.Context, table bitable.TableRef) (*RecordDump, error) {
	if !table.Configured() {
		return nil, NewValidationError("table is not configured")
	}

	rec, err := s.records.FirstRecord(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("read first record of %s: %w", table.TableID, err)
	}

	dump := &RecordDump{
		Table:      table.TableID,
		FieldNames: []string{},
		Fields:     map[string]bitable.CellValue{},
		Normalized: map[string]string{},
	}
	if rec == nil {
		return dump, nil
	}

	dump.RecordID = rec.ID
	for name, cell := range rec.Fields {
		dump.FieldNames = append(dump.FieldNames, name)
		dump.Fields[name] = cell
		dump.Normalized[name] = bitable.Normalize(cell)
	}
	sort.Strings(dump.FieldNames)
	return dump, nil
}
