package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/bitable/bitabletest"
	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/services"
	"bitableTimesheet/internal/session"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var (
	timesheetTable = bitable.TableRef{AppToken: "bascnTest", TableID: "tblTimesheet"}
	employeeTable  = bitable.TableRef{AppToken: "bascnTest", TableID: "tblEmployee"}
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	srv       *bitabletest.Server
	clock     *clock
	issuer    *session.Issuer
	cookies   *sessions.CookieStore
	timesheet *TimesheetHandlers
	auth      *AuthHandlers
	debug     *DebugHandlers
}

func setupTest(t *testing.T) *fixture {
	t.Helper()

	srv := bitabletest.NewServer(t)
	srv.AddTable(timesheetTable, []string{"Date", "Project", "Hours", "Person"},
		bitabletest.Row{"Date": "2025-03-05", "Project": "Apollo", "Hours": 8, "Person": []map[string]string{{"name": "Alice"}}},
		bitabletest.Row{"Date": "2025-03-06", "Project": "Gemini", "Hours": 4, "Person": []map[string]string{{"name": "Bob"}}},
	)
	srv.AddTable(employeeTable, []string{"Name", "Phone"},
		bitabletest.Row{"Name": "Alice", "Phone": "13800138000"},
	)
	client := srv.NewClient(srv.NewTokenCache(), 0)

	clk := &clock{t: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	issuer := session.NewIssuer([]byte(testSecret), "", 0).WithClock(clk.Now)
	codes := session.NewCodeStore(session.CodeStoreConfig{}).WithClock(clk.Now)
	cookies := NewCookieStore([]byte(testSecret), false)

	fields := models.DefaultFieldMap()
	timesheetSvc := services.NewTimesheetService(client, nil, services.TimesheetConfig{Table: timesheetTable, Fields: fields}, nil)
	directorySvc := services.NewDirectoryService(nil, services.NewTimesheetScanSource(client, timesheetTable, fields.Person))
	authSvc := services.NewAuthService(
		services.NewPhoneDirectory(client, employeeTable, "Phone", "Name", "86"),
		codes, issuer, nil, services.AuthConfig{DebugMode: true}, nil,
	)

	return &fixture{
		srv:       srv,
		clock:     clk,
		issuer:    issuer,
		cookies:   cookies,
		timesheet: NewTimesheetHandlers(timesheetSvc, directorySvc, authSvc, cookies, nil),
		auth:      NewAuthHandlers(authSvc, cookies, nil),
		debug:     NewDebugHandlers(services.NewDebugService(client), timesheetTable, bitable.TableRef{}, nil),
	}
}

type envelope struct {
	Code       int             `json:"code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
	DebugCode  string          `json:"debug_code"`
	Token      string          `json:"token"`
	PersonName string          `json:"personName"`
}

func serve(t *testing.T, h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, req)

	var body envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeRows(t *testing.T, raw json.RawMessage) []models.TimesheetRow {
	t.Helper()
	var rows []models.TimesheetRow
	require.NoError(t, json.Unmarshal(raw, &rows))
	return rows
}
