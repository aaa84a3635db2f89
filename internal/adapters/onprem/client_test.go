package onprem

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeChallengeAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AuthorizePath, r.URL.Path)
		var req AuthorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ClientType, req.ClientType)

		if req.Password == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"randomKey":"rk","realm":"brms","encryptType":"MD5"}`))
			return
		}
		_, _ = w.Write([]byte(`{"loginToken":"tok-123"}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	res, err := c.Authorize(context.Background(), srv.URL, AuthorizeRequest{UserName: "admin"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.NotNil(t, res.Challenge)
	assert.Equal(t, Challenge{RandomKey: "rk", Realm: "brms", EncryptType: "MD5"}, *res.Challenge)
	assert.Empty(t, res.Token)

	res, err = c.Authorize(context.Background(), srv.URL, AuthorizeRequest{UserName: "admin", Password: "x", RandomKey: "rk", Realm: "brms"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "tok-123", res.Token)
	assert.Nil(t, res.Challenge)
}

func TestAuthorizeTokenFromHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(TokenHeader, "hdr-tok")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := NewClient(time.Second).Authorize(context.Background(), srv.URL, AuthorizeRequest{UserName: "u"})
	require.NoError(t, err)
	assert.Equal(t, "hdr-tok", res.Token)
}

func TestAttendanceReport(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(TokenHeader) != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, ReportPath, r.URL.Path)
		assert.Equal(t, "2024-01-01 00:00:00", q.Get("startTime"))
		assert.Equal(t, "2024-01-01 23:59:59", q.Get("endTime"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("pageSize"))
		_, _ = w.Write([]byte(`{"code":"1000","desc":"ok","data":{"pageData":[
			{"code":42,"name":"A","attendanceDate":"2024-01-01","signInTime":"08:00","signOutTime":""}
		],"total":1,"page":1,"pageSize":100}}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	q := ReportQuery{Start: start, End: end, Page: 1, PageSize: 100}

	page, err := c.AttendanceReport(context.Background(), srv.URL, "good", q)
	require.NoError(t, err)
	assert.Equal(t, FlexInt(SuccessCode), page.Code)
	require.Len(t, page.Data.PageData, 1)
	rec := page.Data.PageData[0]
	assert.Equal(t, FlexString("42"), rec.Code)
	assert.Equal(t, "08:00", rec.SignInTime)
	assert.Empty(t, rec.SignOutTime)

	_, err = c.AttendanceReport(context.Background(), srv.URL, "stale", q)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAttendanceReportStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	_, err := NewClient(time.Second).AttendanceReport(context.Background(), srv.URL, "t", ReportQuery{Page: 1, PageSize: 10})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, "nope", se.Body)
}

func TestFlexIntRejectsText(t *testing.T) {
	var page ReportPage
	err := json.Unmarshal([]byte(`{"code":"abc"}`), &page)
	assert.Error(t, err)
}
