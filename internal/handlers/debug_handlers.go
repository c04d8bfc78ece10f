package handlers

import (
	"context"
	"net/http"

	"bitableTimesheet/internal/bitable"
	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/services"
	"bitableTimesheet/internal/utils"
)

// RecordDumper dumps the first row of a table.
type RecordDumper interface {
	FirstRecord(ctx context.Context, table bitable.TableRef) (*services.RecordDump, error)
}

// DebugHandlers expose raw table rows for field-name discovery during setup.
type DebugHandlers struct {
	dumper    RecordDumper
	timesheet bitable.TableRef
	roster    bitable.TableRef
	logger    *logger.Logger
}

func NewDebugHandlers(dumper RecordDumper, timesheet, roster bitable.TableRef, log *logger.Logger) *DebugHandlers {
	if log == nil {
		log = logger.Discard()
	}
	return &DebugHandlers{dumper: dumper, timesheet: timesheet, roster: roster, logger: log}
}

// HandleDebugRecord handles GET /api/debug-record
func (h *DebugHandlers) HandleDebugRecord(w http.ResponseWriter, r *http.Request) {
	h.dump(w, r, h.timesheet)
}

// HandleDebugPeople handles GET /api/debug-people
func (h *DebugHandlers) HandleDebugPeople(w http.ResponseWriter, r *http.Request) {
	h.dump(w, r, h.roster)
}

func (h *DebugHandlers) dump(w http.ResponseWriter, r *http.Request, table bitable.TableRef) {
	utils.NoStore(w)

	dump, err := h.dumper.FirstRecord(r.Context(), table)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	utils.RespondWithData(w, dump)
}
