package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/bitable"
)

func TestDebugFirstRecord(t *testing.T) {
	srv, client := setupBitable(t)
	svc := NewDebugService(client)

	dump, err := svc.FirstRecord(context.Background(), timesheetTable)
	require.NoError(t, err)

	assert.Equal(t, "rec001", dump.RecordID)
	assert.Equal(t, []string{"Date", "End Time", "Hours", "Person", "Project", "Start Time"}, dump.FieldNames)
	assert.Equal(t, "Alice", dump.Normalized["Person"])
	assert.Equal(t, "8", dump.Normalized["Hours"])
	assert.Equal(t, bitable.KindLinks, dump.Fields["Person"].Kind())
	assert.Equal(t, 1, srv.ListRequests(timesheetTable))
}

func TestDebugFirstRecordEmptyTable(t *testing.T) {
	srv, client := setupBitable(t)
	srv.AddTable(rosterTable, []string{"Name"})

	dump, err := NewDebugService(client).FirstRecord(context.Background(), rosterTable)
	require.NoError(t, err)
	assert.Empty(t, dump.RecordID)
	assert.Empty(t, dump.FieldNames)
}

func TestDebugFirstRecordUnconfigured(t *testing.T) {
	_, client := setupBitable(t)

	_, err := NewDebugService(client).FirstRecord(context.Background(), bitable.TableRef{})
	assert.True(t, IsKind(err, KindValidation))
}
