package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare host", input: "10.0.0.5", want: "http://10.0.0.5"},
		{name: "host and port", input: "10.0.0.5:8443", want: "http://10.0.0.5:8443"},
		{name: "full url trailing slash", input: "https://payroll.example.com/", want: "https://payroll.example.com"},
		{name: "whitespace", input: "  device.local  ", want: "http://device.local"},
		{name: "empty", input: "", wantErr: true},
		{name: "no host", input: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDoSendsJSONAndReturnsAnyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/thing", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "abc", r.Header.Get("X-Subject-Token"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v", body["k"])

		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"exploded"}`))
	}))
	defer srv.Close()

	tr := New("test", 5*time.Second)
	resp, err := tr.Do(context.Background(), Request{
		Method:  http.MethodPost,
		BaseURL: srv.URL,
		Path:    "/api/thing",
		Query:   url.Values{"page": []string{"2"}},
		Header:  http.Header{"X-Subject-Token": []string{"abc"}},
		Body:    map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, resp.Success())
	assert.Equal(t, `{"detail"`, resp.Snippet(9))
}

func TestDoWrapsConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr := New("test", time.Second)
	_, err := tr.Do(context.Background(), Request{BaseURL: addr, Path: "/"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDoWithoutBaseURL(t *testing.T) {
	tr := New("test", time.Second)
	_, err := tr.Do(context.Background(), Request{Path: "/"})
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

func TestServerErrorsDoNotOpenBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := New("test", time.Second)
	for i := 0; i < 25; i++ {
		resp, err := tr.Do(context.Background(), Request{BaseURL: srv.URL, Path: "/"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	}
	assert.Equal(t, 25, calls)
}

func TestBreakerOpensAfterRepeatedConnectionFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	tr := New("test", time.Second)
	for i := 0; i < 10; i++ {
		_, err := tr.Do(context.Background(), Request{BaseURL: addr, Path: "/"})
		require.ErrorIs(t, err, ErrTransport)
		assert.NotContains(t, err.Error(), "circuit breaker is open")
	}

	_, err := tr.Do(context.Background(), Request{BaseURL: addr, Path: "/"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "test circuit breaker is open")
}
