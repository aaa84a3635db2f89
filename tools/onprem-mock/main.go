// onprem-mock serves a fake timekeeping device and a fake payroll service so
// the bridge can be run end to end on a laptop.
package main

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/pkg/logger"
)

const (
	username = "admin"
	password = "admin123"
)

type device struct {
	employees int
	mu        sync.Mutex
	randomKey string
	tokens    map[string]bool
}

func (d *device) authorize(w http.ResponseWriter, r *http.Request) {
	var req onprem.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if req.RandomKey == "" {
		d.randomKey = uuid.NewString()
		writeJSON(w, http.StatusUnauthorized, onprem.Challenge{RandomKey: d.randomKey, Realm: "mock-device", EncryptType: "MD5"})
		return
	}
	if req.UserName != username || req.RandomKey != d.randomKey || req.Password != digest(password, d.randomKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"desc": "invalid credentials"})
		return
	}
	token := uuid.NewString()
	d.tokens[token] = true
	log.Info().Str("token", token[:8]).Msg("Device session issued")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// report returns one record per employee per day in the window, paginated.
func (d *device) report(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	ok := d.tokens[r.Header.Get(onprem.TokenHeader)]
	d.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	start, err1 := time.ParseInLocation(onprem.TimeLayout, q.Get("startTime"), time.Local)
	end, err2 := time.ParseInLocation(onprem.TimeLayout, q.Get("endTime"), time.Local)
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	if err1 != nil || err2 != nil || page < 1 || size < 1 {
		writeJSON(w, http.StatusOK, map[string]any{"code": 2001, "desc": "invalid query"})
		return
	}

	var all []map[string]string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		for i := 1; i <= d.employees; i++ {
			rec := map[string]string{
				"code":           fmt.Sprintf("E%04d", i),
				"name":           fmt.Sprintf("Employee %d", i),
				"attendanceDate": date,
				"signInTime":     fmt.Sprintf("%s 08:%02d:00", date, i%60),
			}
			if i%5 != 0 {
				rec["signOutTime"] = fmt.Sprintf("17:%02d:00", i%60)
			}
			all = append(all, rec)
		}
	}

	from := min((page-1)*size, len(all))
	to := min(from+size, len(all))
	writeJSON(w, http.StatusOK, map[string]any{
		"code": onprem.SuccessCode,
		"desc": "Success",
		"data": map[string]any{"pageData": all[from:to], "total": len(all), "page": page, "pageSize": size},
	})
}

type payrollService struct {
	mu     sync.Mutex
	token  string
	nextID int
	seen   map[string]int
}

func (p *payrollService) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username != username || req.Password != password {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Unable to log in with provided credentials."})
		return
	}
	p.mu.Lock()
	p.token = uuid.NewString()
	token := p.token
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"user":    map[string]any{"id": 7, "username": req.Username},
		"company": map[string]any{"id": 1, "name": "Mock Payroll Ltd"},
	})
}

func (p *payrollService) sync(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.Header.Get("Authorization") != "Token "+p.token || p.token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
		return
	}
	var req payroll.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.LogList) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "log_list is required"})
		return
	}
	entry := req.LogList[0]
	if id, dup := p.seen[entry.SyncID]; dup {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "duplicate", "existing_id": id})
		return
	}
	p.nextID++
	p.seen[entry.SyncID] = p.nextID
	log.Info().Str("employee", entry.Employee).Str("log_type", entry.LogType).Str("date", entry.Date).Msg("Timesheet received")
	writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"timesheet_id": p.nextID}})
}

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	employees := flag.Int("employees", 25, "employees per day in the attendance report")
	flag.Parse()

	logger.Setup(true, "info")

	d := &device{employees: *employees, tokens: make(map[string]bool)}
	p := &payrollService{seen: make(map[string]int)}

	r := mux.NewRouter()
	r.HandleFunc(onprem.AuthorizePath, d.authorize).Methods(http.MethodPost)
	r.HandleFunc(onprem.ReportPath, d.report).Methods(http.MethodGet)
	r.HandleFunc(payroll.LoginPath, p.login).Methods(http.MethodPost)
	r.HandleFunc(payroll.SyncPath, p.sync).Methods(http.MethodPost)

	log.Info().Str("addr", *addr).Str("user", username).Msg("Mock device and payroll service starting")
	srv := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}

func digest(password, randomKey string) string {
	sum := md5.Sum([]byte(password))
	sum = md5.Sum([]byte(hex.EncodeToString(sum[:]) + randomKey))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
