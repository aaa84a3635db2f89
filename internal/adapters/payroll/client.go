package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"timebridge.service/internal/adapters/transport"
)

const (
	LoginPath = "/api/login/"
	SyncPath  = "/api/sync-time-in-out/"
)

var ErrUnauthorized = errors.New("payroll endpoint rejected the token")

// LoginError is a non-200 login response.
type LoginError struct {
	StatusCode int
	Body       string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("payroll login failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Session is a successful login: the token plus whatever account and
// company metadata the response carried.
type Session struct {
	Token    string
	Metadata json.RawMessage
}

// LogEntry is one directional event in the sync payload.
type LogEntry struct {
	ID           int64   `json:"id"`
	Employee     string  `json:"employee"`
	EmployeeName string  `json:"employee_name,omitempty"`
	LogTime      string  `json:"log_time"`
	LogType      string  `json:"log_type"`
	SyncID       string  `json:"sync_id"`
	Date         string  `json:"date"`
	Photo        *string `json:"photo,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
}

type SyncRequest struct {
	FromBiometrics    bool       `json:"from_biometrics"`
	FromNewBiometrics bool       `json:"from_new_biometrics"`
	LogList           []LogEntry `json:"log_list"`
}

// NewSyncRequest wraps entries with the flags the endpoint expects.
func NewSyncRequest(entries ...LogEntry) SyncRequest {
	return SyncRequest{FromBiometrics: true, FromNewBiometrics: true, LogList: entries}
}

// Client talks to the cloud payroll service.
type Client struct {
	t *transport.Transport
}

func NewClient(timeout time.Duration) *Client {
	return &Client{t: transport.New("payroll", timeout)}
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, baseURL, username, password string) (*Session, error) {
	resp, err := c.t.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		BaseURL: baseURL,
		Path:    LoginPath,
		Body:    map[string]string{"username": username, "password": password},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LoginError{StatusCode: resp.StatusCode, Body: resp.Snippet(200)}
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("malformed login response: %w", err)
	}

	var token string
	for _, key := range []string{"token", "key"} {
		if raw, ok := body[key]; ok {
			if err := json.Unmarshal(raw, &token); err == nil && token != "" {
				delete(body, key)
				break
			}
		}
	}
	if token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}

	session := &Session{Token: token}
	if len(body) > 0 {
		meta, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding login metadata: %w", err)
		}
		session.Metadata = meta
	}
	return session, nil
}

// SyncLogs submits a payload and hands back the raw response for per-record
// interpretation. A 401 is reported as ErrUnauthorized.
func (c *Client) SyncLogs(ctx context.Context, baseURL, token string, req SyncRequest) (*transport.Response, error) {
	resp, err := c.t.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		BaseURL: baseURL,
		Path:    SyncPath,
		Header:  http.Header{"Authorization": []string{"Token " + token}},
		Body:    req,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	return resp, nil
}
