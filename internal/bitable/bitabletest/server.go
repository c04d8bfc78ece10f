// Package bitabletest provides an in-process fake of the Bitable open API for tests.
package bitabletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"bitableTimesheet/internal/bitable"
)

const (
	AppID     = "cli_test_app"
	AppSecret = "test-secret"
)

// Row is one record as the fake stores it, keyed by column name.
type Row map[string]interface{}

type table struct {
	fields []bitable.Field
	rows   []Row
	fail   bool
}

// Server is a fake Bitable deployment backed by httptest.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	expire        int64
	tokenSeq      int
	currentToken  string
	rejectAuth    bool
	tables        map[string]*table
	tokenRequests int
	listRequests  map[string]int
	filters       []string
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		expire:       7200,
		tables:       make(map[string]*table),
		listRequests: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddTable registers a table. Column ids are derived from the names as fld<N>.
func (s *Server) AddTable(ref bitable.TableRef, columns []string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make([]bitable.Field, len(columns))
	for i, name := range columns {
		fields[i] = bitable.Field{ID: fmt.Sprintf("fld%d", i+1), Name: name, Type: 1}
	}
	s.tables[ref.String()] = &table{fields: fields, rows: rows}
}

// FailTable makes every request against the table return an API error.
func (s *Server) FailTable(ref bitable.TableRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tbl, ok := s.tables[ref.String()]; ok {
		tbl.fail = true
		return
	}
	s.tables[ref.String()] = &table{fail: true}
}

// RejectAuth makes the token endpoint return a non-zero code.
func (s *Server) RejectAuth() {
	s.mu.Lock()
	s.rejectAuth = true
	s.mu.Unlock()
}

// RevokeTokens makes the server reject the token it issued last, as if it
// had expired early.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	s.currentToken = ""
	s.mu.Unlock()
}

// SetExpire sets the expire seconds reported for new tokens.
func (s *Server) SetExpire(seconds int64) {
	s.mu.Lock()
	s.expire = seconds
	s.mu.Unlock()
}

// TokenRequests reports how many tokens were issued or refused.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// ListRequests reports how many record pages were requested for a table.
func (s *Server) ListRequests(ref bitable.TableRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listRequests[ref.String()]
}

// Filters returns every filter expression received, in order.
func (s *Server) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.filters...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/open-apis/auth/v3/tenant_access_token/internal" {
		s.handleToken(w, r)
		return
	}

	// /open-apis/bitable/v1/apps/{app}/tables/{table}/{records|fields}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 8 || parts[0] != "open-apis" || parts[3] != "apps" || parts[5] != "tables" {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "msg": "not found"})
		return
	}

	s.mu.Lock()
	authorized := s.currentToken != "" && r.Header.Get("Authorization") == "Bearer "+s.currentToken
	s.mu.Unlock()
	if !authorized {
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": 99991663, "msg": "invalid access token"})
		return
	}

	ref := bitable.TableRef{AppToken: parts[4], TableID: parts[6]}
	switch parts[7] {
	case "records":
		s.handleRecords(w, r, ref)
	case "fields":
		s.handleFields(w, r, ref)
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 404, "msg": "not found"})
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AppID     string `json:"app_id"`
		AppSecret string `json:"app_secret"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenRequests++

	if s.rejectAuth || body.AppID != AppID || body.AppSecret != AppSecret {
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": 10014, "msg": "app secret invalid"})
		return
	}

	s.tokenSeq++
	s.currentToken = fmt.Sprintf("t-test-%d", s.tokenSeq)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":                0,
		"msg":                 "ok",
		"tenant_access_token": s.currentToken,
		"expire":              s.expire,
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request, ref bitable.TableRef) {
	q := r.URL.Query()

	s.mu.Lock()
	s.listRequests[ref.String()]++
	if f := q.Get("filter"); f != "" {
		s.filters = append(s.filters, f)
	}
	tbl, ok := s.tables[ref.String()]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": 91402, "msg": "NOTEXIST"})
		return
	}
	if tbl.fail {
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": 1254000, "msg": "internal error"})
		return
	}

	byID := q.Get("field_key") == "field_id"
	ids := make(map[string]string, len(tbl.fields))
	for _, f := range tbl.fields {
		ids[f.Name] = f.ID
	}

	start, end, hasMore, next := window(q, len(tbl.rows))
	items := make([]map[string]interface{}, 0, end-start)
	for i := start; i < end; i++ {
		fields := make(map[string]interface{}, len(tbl.rows[i]))
		for name, v := range tbl.rows[i] {
			key := name
			if byID {
				if id, ok := ids[name]; ok {
					key = id
				}
			}
			fields[key] = v
		}
		items = append(items, map[string]interface{}{
			"record_id": fmt.Sprintf("rec%03d", i+1),
			"fields":    fields,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "success",
		"data": map[string]interface{}{
			"has_more":   hasMore,
			"page_token": next,
			"total":      len(tbl.rows),
			"items":      items,
		},
	})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request, ref bitable.TableRef) {
	s.mu.Lock()
	tbl, ok := s.tables[ref.String()]
	s.mu.Unlock()

	if !ok || tbl.fail {
		writeJSON(w, http.StatusOK, map[string]interface{}{"code": 91402, "msg": "NOTEXIST"})
		return
	}

	start, end, hasMore, next := window(r.URL.Query(), len(tbl.fields))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code": 0,
		"msg":  "success",
		"data": map[string]interface{}{
			"has_more":   hasMore,
			"page_token": next,
			"total":      len(tbl.fields),
			"items":      tbl.fields[start:end],
		},
	})
}

func window(q map[string][]string, total int) (start, end int, hasMore bool, next string) {
	size := total
	if v := firstValue(q, "page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	if v := firstValue(q, "page_token"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			start = n
		}
	}
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	if end < total {
		return start, end, true, strconv.Itoa(end)
	}
	return start, end, false, ""
}

func firstValue(q map[string][]string, key string) string {
	if v := q[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// NewTokenCache returns a token cache pointed at the fake with valid credentials.
func (s *Server) NewTokenCache() *bitable.TokenCache {
	return bitable.NewTokenCache(bitable.TokenCacheConfig{
		BaseURL:   s.URL,
		AppID:     AppID,
		AppSecret: AppSecret,
	})
}

// NewClient returns a client pointed at the fake. pageSize 0 uses the default.
func (s *Server) NewClient(tokens *bitable.TokenCache, pageSize int) *bitable.Client {
	return bitable.NewClient(bitable.ClientConfig{BaseURL: s.URL, PageSize: pageSize}, tokens)
}
