package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"bitableTimesheet/internal/logger"
	"bitableTimesheet/internal/observability"
)

const tokenPath = "/open-apis/auth/v3/tenant_access_token/internal"

// DefaultRefreshMargin is how long before the declared expiry a token is
// considered stale.
const DefaultRefreshMargin = 60 * time.Second

// TokenCacheConfig configures a TokenCache.
type TokenCacheConfig struct {
	BaseURL    string
	AppID      string
	AppSecret  string
	HTTPClient *http.Client
	Margin     time.Duration
	Logger     *logger.Logger
}

// TokenCache holds one tenant access token and refreshes it on demand.
// Concurrent callers that all see a stale token each refresh; the last
// write wins.
type TokenCache struct {
	endpoint   string
	appID      string
	appSecret  string
	httpClient *http.Client
	margin     time.Duration
	now        func() time.Time
	logger     *logger.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

var (
	_ oauth2.TokenSource = (*TokenCache)(nil)
	_ TokenProvider      = (*TokenCache)(nil)
)

// NewTokenCache constructs an empty cache; the first call fetches a token.
func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	margin := cfg.Margin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &TokenCache{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + tokenPath,
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		httpClient: client,
		margin:     margin,
		now:        time.Now,
		logger:     log,
	}
}

// WithClock replaces the time source.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// Token implements oauth2.TokenSource. A refresh through it is not
// cancellable; prefer Source for request-scoped use.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	return c.TokenContext(context.Background())
}

// Source returns a token source whose refreshes are bound to ctx.
func (c *TokenCache) Source(ctx context.Context) oauth2.TokenSource {
	return contextSource{cache: c, ctx: ctx}
}

type contextSource struct {
	cache *TokenCache
	ctx   context.Context
}

func (s contextSource) Token() (*oauth2.Token, error) {
	return s.cache.TokenContext(s.ctx)
}

// TokenContext returns the cached token or fetches a new one.
func (c *TokenCache) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.current(); tok != nil {
		return tok, nil
	}

	tok, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return tok, nil
}

// Invalidate drops the cached token so the next call refreshes. The client
// calls it when the API rejects the token before its declared expiry.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *TokenCache) current() *oauth2.Token {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	if !c.now().Before(tok.Expiry.Add(-c.margin)) {
		return nil
	}
	return tok
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

func (c *TokenCache) refresh(ctx context.Context) (tok *oauth2.Token, err error) {
	defer func() { observability.RecordUpstreamCall("tenant_access_token", err) }()

	fetchedAt := c.now()

	body, err := json.Marshal(tokenRequest{AppID: c.appID, AppSecret: c.appSecret})
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &AuthError{Status: resp.StatusCode, Msg: resp.Status}
		}
		return nil, &AuthError{Status: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}

	if resp.StatusCode >= 300 || payload.Code != 0 || payload.TenantAccessToken == "" {
		return nil, &AuthError{Status: resp.StatusCode, Code: payload.Code, Msg: payload.Msg}
	}

	observability.RecordTokenRefresh()
	c.logger.WithFields(logger.Fields{
		"expire_seconds": payload.Expire,
	}).Debug("Refreshed Bitable access token")

	return &oauth2.Token{
		AccessToken: payload.TenantAccessToken,
		TokenType:   "Bearer",
		Expiry:      fetchedAt.Add(time.Duration(payload.Expire) * time.Second),
	}, nil
}
