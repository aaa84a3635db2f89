package onprem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"timebridge.service/internal/adapters/transport"
)

const (
	AuthorizePath = "/brms/api/v1.0/accounts/authorize"
	ReportPath    = "/brms/api/v1.0/attendance/record-info-report/page"

	TokenHeader = "X-Subject-Token"
	ClientType  = "WINPC_V2"

	// SuccessCode is the application-level code of a successful report page.
	SuccessCode = 1000

	// TimeLayout is the format of report window bounds.
	TimeLayout = "2006-01-02 15:04:05"
)

var ErrUnauthorized = errors.New("on-prem endpoint rejected the token")

// StatusError is an unexpected HTTP status from the device.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("on-prem endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

type AuthorizeRequest struct {
	UserName   string `json:"userName"`
	Password   string `json:"password,omitempty"`
	IPAddress  string `json:"ipAddress"`
	ClientType string `json:"clientType"`
	RandomKey  string `json:"randomKey,omitempty"`
	Realm      string `json:"realm,omitempty"`
}

// Challenge is the 401 body of the first authorize step.
type Challenge struct {
	RandomKey   string `json:"randomKey"`
	Realm       string `json:"realm"`
	EncryptType string `json:"encryptType"`
}

// AuthorizeResult is the raw outcome of one authorize call. Token is set
// when the response carried one; Challenge is set on a parseable 401.
type AuthorizeResult struct {
	StatusCode int
	Token      string
	Challenge  *Challenge
	Body       string
}

type ReportQuery struct {
	Start    time.Time
	End      time.Time
	Page     int
	PageSize int
}

// AttendanceRecord is one report row: a day's clock-in/out for one employee.
type AttendanceRecord struct {
	Code           FlexString `json:"code"`
	Name           string     `json:"name"`
	AttendanceDate string     `json:"attendanceDate"`
	SignInTime     string     `json:"signInTime"`
	SignOutTime    string     `json:"signOutTime"`
}

type ReportPage struct {
	Code FlexInt `json:"code"`
	Desc string  `json:"desc"`
	Data struct {
		PageData []AttendanceRecord `json:"pageData"`
		Total    int                `json:"total"`
		Page     int                `json:"page"`
		PageSize int                `json:"pageSize"`
	} `json:"data"`
}

// Client talks to the on-premise timekeeping device.
type Client struct {
	t *transport.Transport
}

func NewClient(timeout time.Duration) *Client {
	return &Client{t: transport.New("onprem", timeout)}
}

// Authorize performs one step of the challenge/response handshake.
func (c *Client) Authorize(ctx context.Context, host string, req AuthorizeRequest) (*AuthorizeResult, error) {
	if req.ClientType == "" {
		req.ClientType = ClientType
	}
	resp, err := c.t.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		BaseURL: host,
		Path:    AuthorizePath,
		Body:    req,
	})
	if err != nil {
		return nil, err
	}

	out := &AuthorizeResult{StatusCode: resp.StatusCode, Body: resp.Snippet(200)}
	var body struct {
		LoginToken string `json:"loginToken"`
		Token      string `json:"token"`
		Challenge
	}
	// Bodies that are not JSON leave both token and challenge empty.
	_ = json.Unmarshal(resp.Body, &body)

	switch {
	case body.LoginToken != "":
		out.Token = body.LoginToken
	case body.Token != "":
		out.Token = body.Token
	default:
		out.Token = resp.Header.Get(TokenHeader)
	}
	if resp.StatusCode == http.StatusUnauthorized && (body.RandomKey != "" || body.Realm != "" || body.EncryptType != "") {
		ch := body.Challenge
		out.Challenge = &ch
	}
	return out, nil
}

// AttendanceReport fetches one page of the attendance report.
func (c *Client) AttendanceReport(ctx context.Context, host, token string, q ReportQuery) (*ReportPage, error) {
	query := url.Values{}
	query.Set("startTime", q.Start.Format(TimeLayout))
	query.Set("endTime", q.End.Format(TimeLayout))
	query.Set("page", strconv.Itoa(q.Page))
	query.Set("pageSize", strconv.Itoa(q.PageSize))

	resp, err := c.t.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		BaseURL: host,
		Path:    ReportPath,
		Query:   query,
		Header:  http.Header{TokenHeader: []string{token}},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if !resp.Success() {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: resp.Snippet(200)}
	}

	var page ReportPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("malformed attendance report page %d: %w", q.Page, err)
	}
	return &page, nil
}

// FlexString accepts a JSON string or number.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// FlexInt accepts a JSON number or a numeric string.
type FlexInt int

func (i *FlexInt) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return fmt.Errorf("code %q is not an integer", string(s))
	}
	*i = FlexInt(n)
	return nil
}
