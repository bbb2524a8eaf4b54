package docs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/rendis/itemassert/pkg/schema"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(context.Background(), Config{
		BaseURL:     srv.URL + "/v1",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123", TokenType: "Bearer"}),
		HTTPClient:  srv.Client(),
		RateLimit:   RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
		Node:        "Google Docs",
	})
}

func TestRequest_GET(t *testing.T) {
	var gotAuth, gotPath, gotQuery, gotCT string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documentId":"abc","title":"Notes"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Request(context.Background(), "get", "/documents/abc", nil, url.Values{"suggestionsViewMode": {"PREVIEW_WITHOUT_SUGGESTIONS"}}, "")
	require.NoError(t, err)

	doc, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "abc", doc["documentId"])

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/v1/documents/abc", gotPath)
	assert.Equal(t, "suggestionsViewMode=PREVIEW_WITHOUT_SUGGESTIONS", gotQuery)
	assert.Equal(t, "application/json", gotCT)
	assert.Empty(t, gotBody, "empty body must be omitted")
}

func TestRequest_POSTBody(t *testing.T) {
	var received map[string]any
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"replies":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	body := map[string]any{"requests": []any{map[string]any{"insertText": map[string]any{"text": "hi"}}}}
	out, err := c.Request(context.Background(), http.MethodPost, "/documents/abc:batchUpdate", body, nil, "")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, method)
	assert.Contains(t, received, "requests")
	assert.Equal(t, map[string]any{"replies": []any{}}, out)
}

func TestRequest_ExplicitURI(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Request(context.Background(), http.MethodGet, "/ignored", nil, nil, srv.URL+"/drive/v3/files")
	require.NoError(t, err)
	assert.Equal(t, "/drive/v3/files", gotPath)
}

func TestRequest_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Request(context.Background(), http.MethodDelete, "/documents/abc", nil, nil, "")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRequest_HTTPErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Request(context.Background(), http.MethodGet, "/documents/missing", nil, nil, "")
	require.Error(t, err)

	var nodeErr *schema.NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, schema.ErrCodeTransport, nodeErr.Code)
	assert.Equal(t, "Google Docs", nodeErr.Node)
	assert.Equal(t, http.StatusNotFound, nodeErr.Details["status_code"])
	assert.Contains(t, nodeErr.Message, "Requested entity was not found")

	var apiErr *googleapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestRequest_NetworkErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeTransport))
}

func TestRequest_InvalidJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeTransport))
}

func TestRequest_TooManyRequestsOpensBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)
	assert.True(t, backoffUntil(c.limiter).After(time.Now().Add(20*time.Second)), "429 must open a backoff window")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Request(ctx, http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeTransport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(context.Background(), Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.timeout)
	assert.EqualValues(t, defaultMaxResponseBody, c.maxBody)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}

func TestRequest_ServerErrorsOpenCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		RateLimit:  RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
		Breaker:    BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute},
		Node:       "Google Docs",
	})

	for i := 0; i < 2; i++ {
		_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, c.BreakerState())

	_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the server")

	nodeErr := schema.AsNodeError(err)
	assert.Equal(t, schema.ErrCodeTransport, nodeErr.Code)
	assert.Equal(t, "Google Docs", nodeErr.Node)
	assert.Contains(t, nodeErr.Message, "circuit open")
}

func TestRequest_ClientErrorsKeepCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		RateLimit:  RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
		Breaker:    BreakerConfig{FailureThreshold: 1},
	})
	for i := 0; i < 3; i++ {
		_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
		require.Error(t, err)
	}
	assert.Equal(t, BreakerClosed, c.BreakerState())
}

func TestRequest_CancelledTrialDoesNotLockCircuit(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/documents/slow" {
			<-r.Context().Done()
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"documentId":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		RateLimit:  RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100},
		Breaker:    BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute, HalfOpenMax: 1},
		Node:       "Google Docs",
	})
	advance := fakeClock(c.breaker)

	for i := 0; i < 2; i++ {
		_, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
		require.Error(t, err)
	}
	require.Equal(t, BreakerOpen, c.BreakerState())
	advance(time.Minute)
	healthy.Store(true)

	// Cancelled before sending: the limiter rejects it and no trial is taken.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Request(cancelled, http.MethodGet, "/documents/abc", nil, nil, "")
	require.Error(t, err)

	// Cancelled in flight: the trial is taken and must be given back.
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = c.Request(short, http.MethodGet, "/documents/slow", nil, nil, "")
	require.Error(t, err)
	assert.Equal(t, BreakerHalfOpen, c.BreakerState())

	for i := 0; i < 3; i++ {
		out, err := c.Request(context.Background(), http.MethodGet, "/documents/abc", nil, nil, "")
		require.NoError(t, err, "attempt %d", i)
		assert.Equal(t, "abc", out.(map[string]any)["documentId"])
	}
	assert.Equal(t, BreakerClosed, c.BreakerState())
}
