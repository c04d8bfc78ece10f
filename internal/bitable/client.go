package bitable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/observability"
)

const (
	// DefaultBaseURL is the Feishu open platform.
	DefaultBaseURL = "https://open.feishu.cn"

	// DefaultPageSize is the largest page the records endpoint accepts.
	DefaultPageSize = 500

	fieldPageSize = 100
)

// TableRef locates a table inside a Bitable app.
type TableRef struct {
	AppToken string
	TableID  string
}

// Configured reports whether both parts of the location are set.
func (t TableRef) Configured() bool {
	return t.AppToken != "" && t.TableID != ""
}

func (t TableRef) String() string {
	return t.AppToken + "/" + t.TableID
}

// Record is one row. Field keys are column names unless the listing asked
// for stable field ids.
type Record struct {
	ID     string               `json:"record_id"`
	Fields map[string]CellValue `json:"fields"`
}

// Cell returns the value stored under key, or an empty cell.
func (r Record) Cell(key string) CellValue {
	if key == "" {
		return CellValue{}
	}
	return r.Fields[key]
}

// Field describes one column of a table.
type Field struct {
	ID   string `json:"field_id"`
	Name string `json:"field_name"`
	Type int    `json:"type"`
}

// ListOptions tunes a record listing.
type ListOptions struct {
	// Filter is passed through unmodified as the filter query parameter.
	Filter string
	// ByFieldID keys record fields by stable field id instead of name.
	ByFieldID bool
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
	// Transport is the base round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *logger.Logger
}

// TokenProvider supplies bearer tokens for API requests.
type TokenProvider interface {
	// Source returns a token source whose refreshes honor ctx.
	Source(ctx context.Context) oauth2.TokenSource
	// Invalidate forgets the current token.
	Invalidate()
}

// Codes the API returns for a missing, invalid or expired access token.
var tokenRejectedCodes = map[int]bool{
	99991661: true,
	99991663: true,
	99991677: true,
}

// Client reads Bitable tables.
type Client struct {
	baseURL   string
	pageSize  int
	timeout   time.Duration
	transport http.RoundTripper
	tokens    TokenProvider
	logger    *logger.Logger
}

// NewClient constructs a client whose requests carry a bearer token from tokens.
func NewClient(cfg ClientConfig, tokens TokenProvider) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageSize:  pageSize,
		timeout:   timeout,
		transport: cfg.Transport,
		tokens:    tokens,
		logger:    log,
	}
}

// httpClient authorizes requests with a token refreshed under ctx.
func (c *Client) httpClient(ctx context.Context) *http.Client {
	return &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: c.tokens.Source(ctx), Base: c.transport},
	}
}

// ListRecords returns every row of the table, following page cursors until
// the server reports no more pages. Any failed page fails the whole call.
func (c *Client) ListRecords(ctx context.Context, table TableRef, opts ListOptions) ([]Record, error) {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(c.pageSize))
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}
	if opts.ByFieldID {
		query.Set("field_key", "field_id")
	}

	records, err := collect[Record](ctx, c, "list_records", table, c.recordsPath(table), query, 0)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logger.Fields{
		"table":   table.TableID,
		"records": len(records),
		"filter":  opts.Filter != "",
	}).Debug("Listed Bitable records")
	return records, nil
}

// FirstRecord returns the first row of the table, or nil when it is empty.
func (c *Client) FirstRecord(ctx context.Context, table TableRef) (*Record, error) {
	query := url.Values{}
	query.Set("page_size", "1")

	records, err := collect[Record](ctx, c, "first_record", table, c.recordsPath(table), query, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListFields returns the column schema of the table.
func (c *Client) ListFields(ctx context.Context, table TableRef) ([]Field, error) {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(fieldPageSize))

	path := fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/fields",
		url.PathEscape(table.AppToken), url.PathEscape(table.TableID))
	return collect[Field](ctx, c, "list_fields", table, path, query, 0)
}

func (c *Client) recordsPath(table TableRef) string {
	return fmt.Sprintf("/open-apis/bitable/v1/apps/%s/tables/%s/records",
		url.PathEscape(table.AppToken), url.PathEscape(table.TableID))
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type page[T any] struct {
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
	Items     []T    `json:"items"`
}

// collect walks every page of a list endpoint. limit > 0 stops after that
// many items.
func collect[T any](ctx context.Context, c *Client, op string, table TableRef, path string, query url.Values, limit int) ([]T, error) {
	if !table.Configured() {
		return nil, &FetchError{Op: op, Table: table.String(), Err: errors.New("table location is not configured")}
	}

	var out []T
	pageToken := ""
	for pageNum := 1; ; pageNum++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		p, err := fetchPage[T](ctx, c, op, table, path, q, pageNum)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Items...)

		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if !p.HasMore {
			return out, nil
		}
		if p.PageToken == "" || p.PageToken == pageToken {
			return nil, &FetchError{Op: op, Table: table.String(), Page: pageNum, Err: errors.New("has_more set without a new page_token")}
		}
		pageToken = p.PageToken
	}
}

func fetchPage[T any](ctx context.Context, c *Client, op string, table TableRef, path string, query url.Values, pageNum int) (p page[T], err error) {
	defer func() { observability.RecordUpstreamCall(op, err) }()

	fail := func(status, code int, msg string, cause error) error {
		return &FetchError{Op: op, Table: table.String(), Page: pageNum, Status: status, Code: code, Msg: msg, Err: cause}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return p, fail(0, 0, "", err)
	}

	resp, err := c.httpClient(ctx).Do(req)
	if err != nil {
		return p, fail(0, 0, "", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return p, fail(resp.StatusCode, 0, resp.Status, nil)
		}
		return p, fail(resp.StatusCode, 0, "", fmt.Errorf("decode response: %w", err))
	}
	if tokenRejectedCodes[env.Code] {
		c.tokens.Invalidate()
		c.logger.WithFields(logger.Fields{
			"table": table.TableID,
			"code":  env.Code,
		}).Warn("Access token rejected, dropped from cache")
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return p, fail(resp.StatusCode, env.Code, env.Msg, nil)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return p, fail(resp.StatusCode, 0, "", fmt.Errorf("decode page: %w", err))
		}
	}
	return p, nil
}
