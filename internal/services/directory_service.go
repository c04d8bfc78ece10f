package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/logger"
)

// PersonSource yields person names from one place. A source that is not
// set up returns nil, nil.
type PersonSource interface {
	Name() string
	Persons(ctx context.Context) ([]string, error)
}

// TableSource collects the values of the first non-empty column among
// Fields in every row of Table.
type TableSource struct {
	Label   string
	Records RecordLister
	Table   bitable.TableRef
	Fields  []string
}

// NewRosterSource reads names from the dedicated roster table.
func NewRosterSource(records RecordLister, table bitable.TableRef, field string) *TableSource {
	return &TableSource{Label: "roster", Records: records, Table: table, Fields: []string{field}}
}

// NewTimesheetScanSource reads names from the person columns of the timesheet table.
func NewTimesheetScanSource(records RecordLister, table bitable.TableRef, fields []string) *TableSource {
	return &TableSource{Label: "timesheet", Records: records, Table: table, Fields: fields}
}

func (s *TableSource) Name() string { return s.Label }

func (s *TableSource) Persons(ctx context.Context) ([]string, error) {
	if !s.Table.Configured() {
		return nil, nil
	}

	records, err := s.Records.ListRecords(ctx, s.Table, bitable.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", s.Label, err)
	}

	var names []string
	for _, rec := range records {
		names = append(names, personCell(rec, s.Fields).Values()...)
	}
	return names, nil
}

// DirectoryService lists known persons, trying each source in order and
// taking the first that yields any name.
type DirectoryService struct {
	sources []PersonSource
	logger  *logger.Logger
}

// NewDirectoryService creates a directory over the given sources.
func NewDirectoryService(log *logger.Logger, sources ...PersonSource) *DirectoryService {
	if log == nil {
		log = logger.Discard()
	}
	return &DirectoryService{sources: sources, logger: log}
}

// ListPersons returns unique trimmed names sorted ascending. A failing
// source is logged and skipped; the error is only returned when the last
// source fails and nothing was found.
func (s *DirectoryService) ListPersons(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, src := range s.sources {
		names, err := src.Persons(ctx)
		if err != nil {
			s.logger.WithFields(logger.Fields{
				"source": src.Name(),
			}).WithError(err).Warn("Person source failed, trying next")
			lastErr = err
			continue
		}
		lastErr = nil

		unique := DedupeSorted(names)
		if len(unique) > 0 {
			s.logger.WithFields(logger.Fields{
				"source": src.Name(),
				"count":  len(unique),
			}).Debug("Person directory served")
			return unique, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return []string{}, nil
}

// DedupeSorted trims names, drops blanks and duplicates, and sorts the rest.
// Comparison is case-sensitive.
func DedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
