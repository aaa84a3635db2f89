package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
	"timebridge.service/internal/ports/repository/repotest"
)

const (
	testUser     = "admin"
	testPassword = "secret"
	testRandKey  = "rk-123"
)

type record map[string]any

// fakeDevice speaks the on-prem authorize and report protocol.
type fakeDevice struct {
	mu          sync.Mutex
	encryptType string
	code        int
	records     []record
	issued      map[string]bool
	authCalls   int
	reports     []map[string]string
}

func newFakeDevice(records ...record) *fakeDevice {
	return &fakeDevice{encryptType: "MD5", code: onprem.SuccessCode, records: records, issued: map[string]bool{}}
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case onprem.AuthorizePath:
		d.authCalls++
		var req onprem.AuthorizeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"randomKey": testRandKey, "realm": "device", "encryptType": d.encryptType})
			return
		}
		if req.Password != encryptPassword(testPassword, testRandKey) || req.RandomKey != testRandKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad password"}`))
			return
		}
		token := fmt.Sprintf("device-token-%d", len(d.issued)+1)
		d.issued[token] = true
		_ = json.NewEncoder(w).Encode(map[string]string{"loginToken": token})

	case onprem.ReportPath:
		if !d.issued[r.Header.Get(onprem.TokenHeader)] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		d.reports = append(d.reports, map[string]string{
			"startTime": q.Get("startTime"),
			"endTime":   q.Get("endTime"),
			"page":      q.Get("page"),
			"pageSize":  q.Get("pageSize"),
		})
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("pageSize"))
		start := min((page-1)*size, len(d.records))
		end := min(start+size, len(d.records))

		body := map[string]any{
			"code": d.code,
			"desc": "ok",
			"data": map[string]any{
				"pageData": d.records[start:end],
				"total":    len(d.records),
				"page":     page,
				"pageSize": size,
			},
		}
		_ = json.NewEncoder(w).Encode(body)

	default:
		http.NotFound(w, r)
	}
}

// fakePayroll speaks the cloud login and sync protocol. respond decides the
// outcome of each submitted log entry.
type fakePayroll struct {
	mu       sync.Mutex
	token    string
	logins   int
	received []payroll.LogEntry
	respond  func(payroll.LogEntry) (int, string)
}

func newFakePayroll(respond func(payroll.LogEntry) (int, string)) *fakePayroll {
	return &fakePayroll{token: "cloud-token", respond: respond}
}

func (p *fakePayroll) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case payroll.LoginPath:
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["password"] != testPassword {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"non_field_errors":["Unable to log in"]}`))
			return
		}
		p.logins++
		_, _ = w.Write([]byte(`{"token":"` + p.token + `","user":{"id":7},"company":"Acme"}`))

	case payroll.SyncPath:
		if r.Header.Get("Authorization") != "Token "+p.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req payroll.SyncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.LogList) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.received = append(p.received, req.LogList[0])
		status, body := p.respond(req.LogList[0])
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))

	default:
		http.NotFound(w, r)
	}
}

func (p *fakePayroll) receivedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received)
}

type harness struct {
	repo  *repository.SQLRepository
	auth  *AuthService
	pull  *PullService
	push  *PushService
	admin *AdminService
}

func newHarness(t *testing.T, device, cloud http.Handler) *harness {
	t.Helper()
	ctx := context.Background()
	repo := repotest.New(t)

	var u model.EndpointConfigUpdate
	if device != nil {
		srv := httptest.NewServer(device)
		t.Cleanup(srv.Close)
		u.OnPremHost = model.Ptr(srv.URL)
		u.OnPremUsername = model.Ptr(testUser)
		u.OnPremPassword = model.Ptr(testPassword)
	}
	if cloud != nil {
		srv := httptest.NewServer(cloud)
		t.Cleanup(srv.Close)
		u.CloudURL = model.Ptr(srv.URL)
		u.CloudUsername = model.Ptr(testUser)
		u.CloudPassword = model.Ptr(testPassword)
	}
	require.NoError(t, repo.UpdateEndpointConfig(ctx, u))

	onpremClient := onprem.NewClient(5 * time.Second)
	payrollClient := payroll.NewClient(5 * time.Second)
	auth := NewAuthService(repo, onpremClient, payrollClient)
	return &harness{
		repo:  repo,
		auth:  auth,
		pull:  NewPullService(repo, auth, onpremClient, DefaultPageSize),
		push:  NewPushService(repo, auth, payrollClient, DefaultBatchLimit),
		admin: NewAdminService(repo, auth),
	}
}

// seedPending stores one unsynced event per direction given.
func seedPending(t *testing.T, repo *repository.SQLRepository, externalID string, dirs ...model.Direction) []int64 {
	t.Helper()
	ctx := context.Background()
	empID, err := repo.UpsertEmployee(ctx, repository.EmployeeInput{ExternalID: externalID, Name: "Employee " + externalID, Code: model.Ptr(externalID)})
	require.NoError(t, err)

	ids := make([]int64, 0, len(dirs))
	for i, dir := range dirs {
		clock := fmt.Sprintf("%02d:00:00", 8+i)
		id, inserted, err := repo.InsertTimesheetEvent(ctx, repository.NewTimesheetEvent{
			DedupKey:   DedupKey(externalID, "2024-01-01", clock, dir),
			EmployeeID: empID,
			Direction:  dir,
			EventDate:  "2024-01-01",
			EventTime:  clock,
			Status:     model.EventStatusSuccess,
		})
		require.NoError(t, err)
		require.True(t, inserted)
		ids = append(ids, id)
	}
	return ids
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &t
}
