package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/bitable/bitabletest"
	"bitableTimesheet/internal/models"
)

var (
	timesheetTable = bitable.TableRef{AppToken: "bascnTest", TableID: "tblTimesheet"}
	rosterTable    = bitable.TableRef{AppToken: "bascnTest", TableID: "tblRoster"}
)

var timesheetColumns = []string{"Date", "Project", "Start Time", "End Time", "Hours", "Person"}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

// setupBitable starts a fake with the two-row timesheet used across tests.
func setupBitable(t *testing.T) (*bitabletest.Server, *bitable.Client) {
	t.Helper()
	srv := bitabletest.NewServer(t)
	srv.AddTable(timesheetTable, timesheetColumns,
		bitabletest.Row{"Date": "2025-03-05", "Project": "Apollo", "Start Time": "09:00", "End Time": "17:00", "Hours": 8, "Person": []map[string]string{{"name": "Alice"}}},
		bitabletest.Row{"Date": "2025-03-06", "Project": "Gemini", "Start Time": "13:00", "End Time": "17:00", "Hours": 4, "Person": []map[string]string{{"name": "Bob"}}},
	)
	return srv, srv.NewClient(srv.NewTokenCache(), 0)
}

func newTimesheetService(records RecordLister, cfg TimesheetConfig) *TimesheetService {
	cfg.Table = timesheetTable
	if cfg.Fields.Date == "" {
		cfg.Fields = models.DefaultFieldMap()
	}
	return NewTimesheetService(records, nil, cfg, nil)
}

type failingLister struct{}

func (failingLister) ListRecords(context.Context, bitable.TableRef, bitable.ListOptions) ([]bitable.Record, error) {
	return nil, errors.New("upstream down")
}

type staticSource struct {
	name  string
	names []string
	err   error
	calls int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Persons(context.Context) ([]string, error) {
	s.calls++
	return s.names, s.err
}
