// Package docs is a thin client for the Google Docs REST API. It injects
// OAuth2 credentials, rate-limits requests and translates every transport or
// HTTP failure into a TRANSPORT_ERROR carrying the calling node's name.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/rendis/itemassert/internal/logging"
	"github.com/rendis/itemassert/pkg/schema"
)

// DefaultBaseURL is the root every resource path is appended to.
const DefaultBaseURL = "https://docs.googleapis.com/v1"

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Config configures a Client.
type Config struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// TokenSource supplies OAuth2 access tokens. Nil sends unauthenticated requests.
	TokenSource oauth2.TokenSource
	// HTTPClient is the base client wrapped by the OAuth2 transport.
	HTTPClient      *http.Client
	Timeout         time.Duration
	MaxResponseBody int64
	RateLimit       RateLimitConfig
	Breaker         BreakerConfig
	// Node names the workflow node in translated errors.
	Node   string
	Logger *slog.Logger
}

// Client issues authenticated JSON requests to the documents API.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	breaker *Breaker
	timeout time.Duration
	maxBody int64
	node    string
	logger  *slog.Logger
}

// NewClient builds a Client. ctx is only used to construct the OAuth2
// transport and may carry an oauth2.HTTPClient override.
func NewClient(ctx context.Context, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := base
	if cfg.TokenSource != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, cfg.TokenSource)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: NewRateLimiter(cfg.RateLimit),
		breaker: NewBreaker(cfg.Breaker),
		timeout: cfg.Timeout,
		maxBody: cfg.MaxResponseBody,
		node:    cfg.Node,
		logger:  cfg.Logger,
	}
}

// Request sends method to resource (a path below the base URL, e.g.
// "/documents/abc") and returns the decoded JSON response. An explicit uri
// replaces base URL and resource. A nil or empty body is not sent.
func (c *Client) Request(ctx context.Context, method, resource string, body map[string]any, query url.Values, uri string) (any, error) {
	target := uri
	if target == "" {
		target = c.baseURL + resource
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, c.transportError(err, "invalid request url %q", target)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var reqBody io.Reader
	if len(body) > 0 {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "docs: failed to marshal request body").
				WithNode(c.node).WithCause(err)
		}
		reqBody = bytes.NewReader(b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(err, "rate limiter: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(method), u.String(), reqBody)
	if err != nil {
		return nil, c.transportError(err, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Every admitted request records an outcome or releases its trial.
	if err := c.breaker.Allow(); err != nil {
		return nil, schema.AsNodeError(err).WithNode(c.node)
	}

	logger := logging.LogWith(ctx, c.logger)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			c.recordFailure(ctx, logger)
		} else {
			// Cancelled by the caller: says nothing about the API.
			c.breaker.Release()
		}
		return nil, c.transportError(err, "%s %s: request failed: %v", req.Method, u.Path, err)
	}
	defer resp.Body.Close()

	logger.DebugContext(ctx, "docs request",
		slog.String("method", req.Method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= http.StatusInternalServerError {
		c.recordFailure(ctx, logger)
	} else {
		c.breaker.RecordSuccess()
	}

	if err := googleapi.CheckResponse(resp); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.RecordRateLimitError(retryAfter(resp.Header.Get("Retry-After")))
		}
		nodeErr := c.transportError(err, "%s %s: %v", req.Method, u.Path, err)
		nodeErr.Details = map[string]any{"status_code": resp.StatusCode}
		return nil, nodeErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, c.transportError(err, "failed to read response body: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, c.transportError(err, "response is not valid JSON: %v", err)
	}
	return out, nil
}

// BreakerState returns the state of the client's circuit breaker.
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

func (c *Client) recordFailure(ctx context.Context, logger *slog.Logger) {
	if c.breaker.RecordFailure() == BreakerOpen {
		logger.WarnContext(ctx, "docs circuit open", slog.String("node", c.node))
	}
}

func (c *Client) transportError(cause error, format string, args ...any) *schema.NodeError {
	return schema.NewErrorf(schema.ErrCodeTransport, "docs: "+format, args...).
		WithNode(c.node).
		WithCause(cause)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
