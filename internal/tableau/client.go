package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/retry"
	"git.home.luguber.info/inful/tabbackup/internal/version"
)

const (
	// discoveryVersion is the oldest API version that serves /serverinfo.
	discoveryVersion = "2.4"
	authHeader       = "X-Tableau-Auth"
	maxErrorBody     = 512
)

// Client talks to one Tableau Server. It holds at most one session at a time;
// SignIn replaces the current session. Safe for concurrent use by download workers.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiVersion string
	pageSize   int
	limiter    *rate.Limiter
	policy     retry.Policy
	fs         afero.Fs

	mu      sync.RWMutex
	session Session
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (tests pass the httptest server client).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy sets the policy applied to transient request failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithFs sets the filesystem downloads are written to.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

// New creates a client for the server described by cfg. No request is made.
func New(cfg config.ServerConfig, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, errors.ConfigError("invalid server URL").
			WithCause(err).
			WithContext("url", cfg.URL).
			Build()
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.InternalError("failed to create cookie jar").WithCause(err).Build()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := max(cfg.RateBurst, 1)
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		serverURL:  strings.TrimSuffix(u.String(), "/"),
		apiVersion: cfg.APIVersion,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(limit, burst),
		policy:     retry.DefaultPolicy(),
		fs:         afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIVersion returns the REST API version in use; empty until configured or discovered.
func (c *Client) APIVersion() string { return c.apiVersion }

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// apiURL builds <server>/api/<version>/<endpoint>. A query string in endpoint is kept.
func (c *Client) apiURL(apiVersion, endpoint string) (string, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")
	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", errors.ConfigError("failed to parse server URL").
			WithCause(err).
			WithContext("url", c.serverURL).
			Build()
	}
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), "api", apiVersion, cleanEndpoint)
	u.RawQuery = rawQuery
	return u.String(), nil
}

// newRequest creates a JSON request against the given API version. The session
// token, if any, is attached.
func (c *Client) newRequest(ctx context.Context, method, apiVersion, endpoint string, body any) (*http.Request, error) {
	target, err := c.apiURL(apiVersion, endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.InternalError("failed to marshal request body").
				WithCause(err).
				Build()
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.InternalError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", target).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if token := c.Session().Token; token != "" {
		req.Header.Set(authHeader, token)
	}
	return req, nil
}

// send executes one request after waiting on the rate limiter and maps transport and
// status failures to classified errors. On success the caller owns the body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, contextError(req.Context(), err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, contextError(req.Context(), err)
		}
		return nil, errors.NetworkError("failed to execute request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError(req, resp)
	}
	return resp, nil
}

// do runs the request built by build under the retry policy and decodes a JSON
// response into result (nil => body discarded).
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), result any) error {
	return c.withRetry(ctx, func() error {
		req, err := build()
		if err != nil {
			return err
		}
		resp, err := c.send(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if result == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.ServerError("failed to decode response").
				WithCause(err).
				WithContext("url", req.URL.String()).
				Build()
		}
		return nil
	})
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, c.policy, fn, func(attempt int, err error) {
		slog.Warn("Retrying request", slog.Int("attempt", attempt), logfields.Error(err))
	})
}

// statusError classifies a non-2xx response. The body is truncated for diagnostics.
func statusError(req *http.Request, resp *http.Response) error {
	limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	bodyStr := strings.ReplaceAll(string(limitedBody), "\n", " ")
	message := fmt.Sprintf("server API error: %s", resp.Status)

	var b *errors.ErrorBuilder
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b = errors.AuthError(message)
	case resp.StatusCode == http.StatusNotFound:
		b = errors.NewError(errors.CategoryNotFound, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		b = errors.ServerError(message).RateLimit()
	case resp.StatusCode >= 500:
		b = errors.ServerError(message)
	default:
		b = errors.NewError(errors.CategoryServer, message)
	}
	return b.
		WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.String()).
		WithContext("response", bodyStr).
		Build()
}

func contextError(ctx context.Context, err error) error {
	cause := ctx.Err()
	if cause == nil {
		cause = err
	}
	if stderrors.Is(cause, context.DeadlineExceeded) {
		return errors.NetworkError("request deadline exceeded").WithCause(cause).Build()
	}
	return errors.CanceledError("request canceled").WithCause(cause).Build()
}
