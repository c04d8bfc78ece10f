package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/services"
)

func TestDebugRecord(t *testing.T) {
	f := setupTest(t)

	rec, body := serve(t, f.debug.HandleDebugRecord, httptest.NewRequest(http.MethodGet, "/api/debug-record", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var dump services.RecordDump
	require.NoError(t, json.Unmarshal(body.Data, &dump))
	assert.Equal(t, "rec001", dump.RecordID)
	assert.Equal(t, []string{"Date", "Hours", "Person", "Project"}, dump.FieldNames)
	assert.Equal(t, "Alice", dump.Normalized["Person"])
	assert.Contains(t, rec.Body.String(), `"Person":[{"name":"Alice"}]`)
}

func TestDebugPeopleWithoutRoster(t *testing.T) {
	f := setupTest(t)

	rec, body := serve(t, f.debug.HandleDebugPeople, httptest.NewRequest(http.MethodGet, "/api/debug-people", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "table is not configured", body.Msg)
}
