package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"timebridge.service/internal/api/handler"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(h *handler.Handler) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)

	api.HandleFunc("/timesheets", h.ListTimesheets).Methods(http.MethodGet)
	api.HandleFunc("/timesheets", h.ClearTimesheets).Methods(http.MethodDelete)
	api.HandleFunc("/timesheets/unsynced", h.ListUnsynced).Methods(http.MethodGet)
	api.HandleFunc("/timesheets/{id:[0-9]+}/retry", h.RetryTimesheet).Methods(http.MethodPost)
	api.HandleFunc("/employees", h.ListEmployees).Methods(http.MethodGet)

	api.HandleFunc("/sync/pull", h.TriggerPull).Methods(http.MethodPost)
	api.HandleFunc("/sync/push", h.TriggerPush).Methods(http.MethodPost)
	api.HandleFunc("/sync/jobs", h.ListActiveJobs).Methods(http.MethodGet)
	api.HandleFunc("/sync/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/sync/runs", h.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/sync/runs/{id:[0-9]+}", h.GetRun).Methods(http.MethodGet)

	api.HandleFunc("/config", h.GetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", h.UpdateConfig).Methods(http.MethodPut)
	api.HandleFunc("/config/test/{endpoint}", h.TestConnection).Methods(http.MethodPost)
	api.HandleFunc("/cloud/login", h.CloudLogin).Methods(http.MethodPost)
	api.HandleFunc("/cloud/logout", h.CloudLogout).Methods(http.MethodPost)

	api.HandleFunc("/schedule", h.GetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedule/refresh", h.RefreshSchedule).Methods(http.MethodPost)

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	return r
}
