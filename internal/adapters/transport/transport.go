package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrTransport marks failures where no HTTP response was obtained: timeouts,
// refused connections, or an open circuit breaker.
var ErrTransport = errors.New("transport error")

// ErrNoBaseURL is returned when an endpoint has no address configured.
var ErrNoBaseURL = errors.New("base URL not configured")

const maxBodyBytes = 4 << 20

type Request struct {
	Method  string
	BaseURL string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Snippet returns at most n bytes of the body as text.
func (r *Response) Snippet(n int) string {
	if len(r.Body) <= n {
		return string(r.Body)
	}
	return string(r.Body[:n])
}

// Transport handles low-level HTTP for one remote system. The circuit breaker
// is shared by every call to that system and only counts calls that got no
// response; any HTTP status, 5xx included, is the caller's to interpret.
type Transport struct {
	name   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// New creates a transport with a bounded per-call timeout.
func New(name string, timeout time.Duration) *Transport {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is at least 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &Transport{
		name: name,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: gobreaker.NewCircuitBreaker(settings),
	}
}

// NormalizeBaseURL accepts a bare host ("10.0.0.5:8080") or a full URL and
// returns it with a scheme and without a trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Do sends the request. Any HTTP status is returned as a Response; only
// failures to obtain one produce an error wrapping ErrTransport.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	base, err := NormalizeBaseURL(req.BaseURL)
	if err != nil {
		return nil, err
	}
	fullURL := base + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t.name, err)
		}
		body = bytes.NewReader(b)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	result, err := t.cb.Execute(func() (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json;charset=UTF-8")
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		resp, err := t.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	})

	if err == nil {
		return result.(*Response), nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s circuit breaker is open", ErrTransport, t.name)
	}
	return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, req.Path, err)
}
