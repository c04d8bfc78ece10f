package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/models"
	"bitableTimesheet/internal/utils"
)

// TimesheetQuerier answers timesheet queries.
type TimesheetQuerier interface {
	Query(ctx context.Context, q models.TimesheetQuery) ([]models.TimesheetRow, error)
}

// PersonLister lists known persons.
type PersonLister interface {
	ListPersons(ctx context.Context) ([]string, error)
}

// SessionResolver turns a session token into a session, or nil.
type SessionResolver interface {
	ResolveSession(token string) *models.Session
}

// TimesheetHandlers serves the read endpoints
type TimesheetHandlers struct {
	timesheet TimesheetQuerier
	people    PersonLister
	sessions  SessionResolver
	cookies   sessions.Store
	logger    *logger.Logger
}

func NewTimesheetHandlers(timesheet TimesheetQuerier, people PersonLister, resolver SessionResolver, cookies sessions.Store, log *logger.Logger) *TimesheetHandlers {
	if log == nil {
		log = logger.Discard()
	}
	return &TimesheetHandlers{
		timesheet: timesheet,
		people:    people,
		sessions:  resolver,
		cookies:   cookies,
		logger:    log,
	}
}

// HandleTimesheet handles GET /api/timesheet. A valid session token pins
// the person filter to the session's person whatever person says.
func (h *TimesheetHandlers) HandleTimesheet(w http.ResponseWriter, r *http.Request) {
	utils.NoStore(w)

	params := r.URL.Query()
	q := models.TimesheetQuery{
		StartDate: params.Get("start_date"),
		EndDate:   params.Get("end_date"),
		Person:    utils.SanitizeInput(params.Get("person")),
	}

	if h.sessions != nil {
		if sess := h.sessions.ResolveSession(sessionToken(r, h.cookies)); sess != nil {
			if q.Person != "" && q.Person != sess.PersonName {
				h.logger.WithFields(logger.Fields{
					"requested":  q.Person,
					"session":    sess.PersonName,
					"request_id": utils.GetRequestID(r),
				}).Info("Person filter overridden by session")
			}
			q.Person = sess.PersonName
		}
	}

	rows, err := h.timesheet.Query(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	utils.RespondWithData(w, rows)
}

// HandlePeople handles GET /api/people
func (h *TimesheetHandlers) HandlePeople(w http.ResponseWriter, r *http.Request) {
	names, err := h.people.ListPersons(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	utils.RespondWithData(w, names)
}

// HandlePing handles GET /ping
func HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
