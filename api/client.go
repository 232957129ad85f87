// Package api implements the HTTP client for the mgost document build
// service. All request plumbing (auth header, rate-limit retries, the
// short-lived response cache) lives here; the per-endpoint calls are in
// project.go and files.go.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	mgErrors "github.com/mgost/mgost/errors"
	"github.com/mgost/mgost/logging"
)

// DefaultBaseURL is the production endpoint of the build service.
const DefaultBaseURL = "https://articha.tplinkdns.com/api"

const (
	defaultRetryAttempts = 3
	defaultRetryWait     = 5 * time.Second
	defaultCacheTTL      = 30 * time.Second
)

type cachedResponse struct {
	status int
	body   []byte
}

// Client talks to the build service. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	root    string

	hc    *http.Client
	cache *ttlcache.Cache[string, cachedResponse]

	retryAttempts int
	retryWait     time.Duration
	cacheTTL      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests
// and by callers that need custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRoot sets the local directory that project-relative paths are
// resolved against. Defaults to the current directory.
func WithRoot(root string) Option {
	return func(c *Client) { c.root = root }
}

// WithRetry sets how many times a rate-limited request is retried and
// the initial wait between attempts. The wait doubles per attempt.
func WithRetry(attempts int, wait time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryWait = wait
	}
}

// WithCacheTTL sets how long GET responses are served from memory.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// New creates a client for the service at baseURL authenticating with
// token. An empty baseURL selects DefaultBaseURL.
func New(baseURL, token string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		root:          ".",
		retryAttempts: defaultRetryAttempts,
		retryWait:     defaultRetryWait,
		cacheTTL:      defaultCacheTTL,
		hc: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = ttlcache.New[string, cachedResponse](
		ttlcache.WithTTL[string, cachedResponse](c.cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, cachedResponse](),
	)
	go c.cache.Start()
	return c
}

// InvalidateCache drops all cached GET responses. Called after every
// mutation and at the start of a sync pass so decisions are made
// against fresh listings.
func (c *Client) InvalidateCache() {
	c.cache.DeleteAll()
}

// Close stops the cache eviction loop.
func (c *Client) Close() {
	c.cache.Stop()
}

// localPath resolves a project-relative slash path against the root.
func (c *Client) localPath(p string) string {
	return filepath.Join(c.root, filepath.FromSlash(p))
}

func (c *Client) url(p string, q url.Values) string {
	u := c.baseURL + escapePath(p)
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// escapePath escapes each path segment while keeping the separators,
// so project paths like "images/fig 1.png" stay addressable.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// do performs a request and interprets the service's error envelope.
// Successful GET responses are cached for a short TTL so repeated
// lookups within one pass stay off the network.
func (c *Client) do(ctx context.Context, method, p string, q url.Values) ([]byte, int, error) {
	key := method + " " + c.url(p, q)
	if method == http.MethodGet {
		if item := c.cache.Get(key); item != nil {
			cached := item.Value()
			return cached.body, cached.status, nil
		}
	}

	body, status, err := c.roundTrip(ctx, method, p, q, "", nil)
	if err != nil {
		return nil, 0, err
	}
	if err := c.checkResponse(method, p, status, body); err != nil {
		return body, status, err
	}
	if method == http.MethodGet {
		c.cache.Set(key, cachedResponse{status: status, body: body}, ttlcache.DefaultTTL)
	}
	return body, status, nil
}

// roundTrip sends one request, retrying while the service answers 429.
// Once the retry budget is spent the rate-limited response is returned
// as-is and surfaces through checkResponse.
func (c *Client) roundTrip(ctx context.Context, method, p string, q url.Values, contentType string, payload []byte) ([]byte, int, error) {
	log := logging.Sub("api")

	wait := c.retryWait
	for attempt := 0; ; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(p, q), reqBody)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("X-API-Key", c.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, 0, err
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= c.retryAttempts {
			return body, resp.StatusCode, nil
		}

		log.Warn("rate limited, backing off",
			"method", method, "path", p, "wait", wait)
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// checkResponse maps the service's error payloads onto
// RemoteRequestError. Failures arrive as a JSON object carrying a
// "detail" field, occasionally with a 2xx status.
func (c *Client) checkResponse(method, p string, status int, body []byte) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return mgErrors.RemoteRequestError{Method: method, Path: p, Status: status, Detail: payload.Detail}
	}
	if status >= 400 {
		return mgErrors.RemoteRequestError{Method: method, Path: p, Status: status}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, p string, q url.Values, v any) error {
	body, _, err := c.do(ctx, http.MethodGet, p, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// doUpload sends content as a multipart form file. The form body is
// encoded once and replayed on retry.
func (c *Client) doUpload(ctx context.Context, method, p string, q url.Values, filename string, content []byte) ([]byte, int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, 0, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, 0, err
	}
	if err := mw.Close(); err != nil {
		return nil, 0, err
	}

	body, status, err := c.roundTrip(ctx, method, p, q, mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return nil, 0, err
	}
	if err := c.checkResponse(method, p, status, body); err != nil {
		return body, status, err
	}
	return body, status, nil
}
