// Package backend is the REST client for the regulatory backend. List
// endpoints may answer with a bare JSON array or with a paginated
// {count, next, previous, results} envelope; both are normalised here so the
// rest of the code only ever sees slices.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/habilita/habilita/internal/platform/httpx"
)

// Defaults applied by New.
const (
	DefaultTimeout  = 15 * time.Second
	DefaultMaxPages = 50
)

// Config configures the client.
type Config struct {
	BaseURL    string
	Token      string
	AuthScheme string
	Timeout    time.Duration
	MaxPages   int
	Logger     *slog.Logger
	HTTPClient *http.Client
	// OnError, when set, is told the status of every failed call; 0 means
	// the backend could not be reached.
	OnError func(status int)
}

// Client talks to the backend API. It never retries; a failed call is
// reported to the caller as is.
type Client struct {
	http     *resty.Client
	base     *url.URL
	token    string
	scheme   string
	maxPages int
	logger   *slog.Logger
	onError  func(status int)
}

// New builds a client from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rc := resty.New()
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil {
		cfg.Logger.Warn("backend base url", slog.String("url", baseURL), slog.Any("error", err))
		base = nil
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:     rc,
		base:     base,
		token:    cfg.Token,
		scheme:   cfg.AuthScheme,
		maxPages: cfg.MaxPages,
		logger:   cfg.Logger,
		onError:  cfg.OnError,
	}
}

type tokenKey struct{}

// WithToken attaches the signed-in user's access token to ctx. Requests made
// with ctx authenticate as that user instead of the service token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the token attached by WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func (c *Client) authToken(ctx context.Context) string {
	if token := TokenFrom(ctx); token != "" {
		return token
	}
	return c.token
}

// do executes one request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if token := c.authToken(ctx); token != "" {
		req.SetHeader("Authorization", c.scheme+" "+token)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.reportError(0)
		return nil, fmt.Errorf("%w: %s %s: %w", httpx.ErrUpstream, method, path, err)
	}
	c.logger.Debug("backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode()),
		slog.Duration("duration", time.Since(start)),
	)
	if resp.IsError() {
		c.reportError(resp.StatusCode())
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func (c *Client) reportError(status int) {
	if c.onError != nil {
		c.onError(status)
	}
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := c.do(ctx, method, path, nil, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

type envelope[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// decodeList accepts either shape and returns the items plus the next link.
func decodeList[T any](body []byte) ([]T, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", err
		}
		return items, "", nil
	}
	var env envelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, "", err
	}
	next := ""
	if env.Next != nil {
		next = strings.TrimSpace(*env.Next)
	}
	return env.Results, next, nil
}

// listAll reads every page of a list endpoint, following next links up to
// the configured page limit.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	items := []T{}
	next := path
	for page := 0; next != ""; page++ {
		if page >= c.maxPages {
			c.logger.Warn("backend pagination truncated", slog.String("path", path), slog.Int("pages", page))
			break
		}
		body, err := c.do(ctx, http.MethodGet, next, query, nil)
		if err != nil {
			return nil, err
		}
		batch, nextURL, err := decodeList[T](body)
		if err != nil {
			return nil, fmt.Errorf("backend: decode %s: %w", path, err)
		}
		items = append(items, batch...)
		if nextURL == "" {
			break
		}
		// next links already carry the query string.
		resolved, ok := c.sameOrigin(nextURL)
		if !ok {
			c.logger.Warn("backend pagination left the api host, not following",
				slog.String("path", path), slog.String("next", nextURL))
			break
		}
		next, query = resolved, nil
	}
	return items, nil
}

// sameOrigin resolves a next link against the base URL and accepts it only
// when it stays on the base host. The result always uses the base scheme and
// host, so the access token is never sent anywhere else.
func (c *Client) sameOrigin(link string) (string, bool) {
	if c.base == nil || c.base.Host == "" {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	u = c.base.ResolveReference(u)
	if !strings.EqualFold(u.Hostname(), c.base.Hostname()) || u.Port() != c.base.Port() {
		return "", false
	}
	u.Scheme, u.Host, u.User = c.base.Scheme, c.base.Host, nil
	return u.String(), true
}
