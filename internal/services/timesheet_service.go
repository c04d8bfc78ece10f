package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/utils"
)

// RecordLister reads every row of a table.
type RecordLister interface {
	ListRecords(ctx context.Context, table bitable.TableRef, opts bitable.ListOptions) ([]bitable.Record, error)
}

// FieldIDResolver maps column names to stable field ids.
type FieldIDResolver interface {
	ResolveAll(ctx context.Context, table bitable.TableRef, names []string) (map[string]string, error)
}

// FilterMode selects where timesheet filters are applied.
type FilterMode string

const (
	// FilterLocal fetches the whole table and filters in process.
	FilterLocal FilterMode = "local"
	// FilterRemote also pushes the filters into the listing request.
	FilterRemote FilterMode = "remote"
)

// ParseFilterMode maps a config value to a mode, defaulting to local.
func ParseFilterMode(value string) FilterMode {
	if strings.EqualFold(strings.TrimSpace(value), string(FilterRemote)) {
		return FilterRemote
	}
	return FilterLocal
}

// TimesheetConfig describes the timesheet table.
type TimesheetConfig struct {
	Table       bitable.TableRef
	Fields      models.FieldMap
	FilterMode  FilterMode
	UseFieldIDs bool
	// Location is used to turn epoch-millisecond dates into calendar days.
	Location *time.Location
}

// TimesheetService answers timesheet queries
type TimesheetService struct {
	records  RecordLister
	resolver FieldIDResolver
	cfg      TimesheetConfig
	logger   *logger.Logger
}

// NewTimesheetService creates a timesheet service. resolver is only used
// when cfg.UseFieldIDs is set.
func NewTimesheetService(records RecordLister, resolver FieldIDResolver, cfg TimesheetConfig, log *logger.Logger) *TimesheetService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FilterMode == "" {
		cfg.FilterMode = FilterLocal
	}
	if log == nil {
		log = logger.Discard()
	}
	return &TimesheetService{
		records:  records,
		resolver: resolver,
		cfg:      cfg,
		logger:   log,
	}
}

// Query returns the rows matching q in table order. Rows always carry every
// field; missing text is "" and missing or non-numeric hours are 0.
func (s *TimesheetService) Query(ctx context.Context, q models.TimesheetQuery) ([]models.TimesheetRow, error) {
	q.StartDate = strings.TrimSpace(q.StartDate)
	q.EndDate = strings.TrimSpace(q.EndDate)
	q.Person = strings.TrimSpace(q.Person)

	v := utils.NewValidator().
		ValidateDate(q.StartDate, "start_date").
		ValidateDate(q.EndDate, "end_date").
		ValidateSafeText(q.Person, "person")
	if v.HasErrors() {
		return nil, NewValidationError(v.ErrorString())
	}

	keys, err := s.columnKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve timesheet fields: %w", err)
	}

	opts := bitable.ListOptions{ByFieldID: s.cfg.UseFieldIDs}
	if s.cfg.FilterMode == FilterRemote {
		opts.Filter = BuildFilter(s.cfg.Fields, q)
	}

	records, err := s.records.ListRecords(ctx, s.cfg.Table, opts)
	if err != nil {
		return nil, fmt.Errorf("list timesheet records: %w", err)
	}

	rows := make([]models.TimesheetRow, 0, len(records))
	for _, rec := range records {
		person := personCell(rec, keys.Person)
		row := s.project(rec, keys, person)
		if !matches(row, person, q) {
			continue
		}
		rows = append(rows, row)
	}

	s.logger.WithFields(logger.Fields{
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
		"person":     q.Person,
		"mode":       string(s.cfg.FilterMode),
		"scanned":    len(records),
		"returned":   len(rows),
	}).Debug("Timesheet query served")

	return rows, nil
}

// columnKeys returns the record keys to read. In field-id mode, columns
// that cannot be resolved map to "" and read as absent.
func (s *TimesheetService) columnKeys(ctx context.Context) (models.FieldMap, error) {
	fields := s.cfg.Fields
	if !s.cfg.UseFieldIDs || s.resolver == nil {
		return fields, nil
	}

	names := append([]string{fields.Date, fields.Project, fields.StartTime, fields.EndTime, fields.Hours}, fields.Person...)
	ids, err := s.resolver.ResolveAll(ctx, s.cfg.Table, names)
	if err != nil {
		return models.FieldMap{}, err
	}

	keys := models.FieldMap{
		Date:      ids[fields.Date],
		Project:   ids[fields.Project],
		StartTime: ids[fields.StartTime],
		EndTime:   ids[fields.EndTime],
		Hours:     ids[fields.Hours],
	}
	for _, name := range fields.Person {
		if id, ok := ids[name]; ok {
			keys.Person = append(keys.Person, id)
		}
	}
	return keys, nil
}

func (s *TimesheetService) project(rec bitable.Record, keys models.FieldMap, person bitable.CellValue) models.TimesheetRow {
	hours, ok := rec.Cell(keys.Hours).Float()
	if !ok {
		hours = 0
	}
	return models.TimesheetRow{
		Date:      NormalizeDate(rec.Cell(keys.Date), s.cfg.Location),
		Project:   bitable.Normalize(rec.Cell(keys.Project)),
		StartTime: bitable.Normalize(rec.Cell(keys.StartTime)),
		EndTime:   bitable.Normalize(rec.Cell(keys.EndTime)),
		Person:    bitable.Normalize(person),
		Hours:     hours,
	}
}

// personCell returns the first candidate column that holds a value.
func personCell(rec bitable.Record, candidates []string) bitable.CellValue {
	for _, key := range candidates {
		if cell := rec.Cell(key); cell.String() != "" {
			return cell
		}
	}
	return bitable.CellValue{}
}

// matches compares YYYY-MM-DD strings lexicographically; the fixed-width
// layout makes that equivalent to calendar order.
func matches(row models.TimesheetRow, person bitable.CellValue, q models.TimesheetQuery) bool {
	if q.StartDate != "" && row.Date < q.StartDate {
		return false
	}
	if q.EndDate != "" && row.Date > q.EndDate {
		return false
	}
	if q.Person != "" && !person.Contains(q.Person) {
		return false
	}
	return true
}

// NormalizeDate turns a date cell into YYYY-MM-DD. Numbers and digit-only
// strings are epoch milliseconds; other strings are truncated to the day.
func NormalizeDate(v bitable.CellValue, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	if v.Kind() == bitable.KindNumber {
		f, _ := v.Float()
		return time.UnixMilli(int64(f)).In(loc).Format(utils.DateLayout)
	}

	s := v.String()
	if s == "" {
		return ""
	}
	if utils.DigitsOnly(s) == s && len(s) >= 10 {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).In(loc).Format(utils.DateLayout)
		}
	}

	s = strings.ReplaceAll(s, "/", "-")
	if len(s) > len(utils.DateLayout) {
		s = s[:len(utils.DateLayout)]
	}
	return s
}

// BuildFilter renders q as a Bitable filter expression over column names.
// Only supplied clauses are included; an empty query yields "".
func BuildFilter(fields models.FieldMap, q models.TimesheetQuery) string {
	var clauses []string
	if q.StartDate != "" && fields.Date != "" {
		clauses = append(clauses, fmt.Sprintf(`CurrentValue.[%s]>=%s`, fields.Date, quoteFilterValue(q.StartDate)))
	}
	if q.EndDate != "" && fields.Date != "" {
		clauses = append(clauses, fmt.Sprintf(`CurrentValue.[%s]<=%s`, fields.Date, quoteFilterValue(q.EndDate)))
	}
	if q.Person != "" && len(fields.Person) > 0 {
		clauses = append(clauses, fmt.Sprintf(`CurrentValue.[%s]=%s`, fields.Person[0], quoteFilterValue(q.Person)))
	}

	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	default:
		return "AND(" + strings.Join(clauses, ",") + ")"
	}
}

func quoteFilterValue(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}
