package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"timebridge.service/internal/core/model"
)

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Admin.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", stats)
}

func (h *Handler) ListTimesheets(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	offset, err := intQuery(r, "offset")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	page, err := h.Admin.ListTimesheets(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", page)
}

func (h *Handler) ListUnsynced(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	events, err := h.Admin.ListUnsynced(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", events)
}

func (h *Handler) RetryTimesheet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, "timesheet id must be an integer")
		return
	}
	if err := h.Admin.RetryTimesheet(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("Timesheet %d queued for retry", id), nil)
}

func (h *Handler) ClearTimesheets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeBadRequest(w, "from and to are required")
		return
	}
	n, err := h.Admin.ClearRange(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("Deleted %d timesheets", n), map[string]int64{"deleted": n})
}

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Admin.ListEmployees(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", employees)
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Admin.GetConfig(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", cfg)
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req model.EndpointConfigUpdate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := h.Admin.UpdateConfig(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Configuration saved", nil)
}

func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	endpoint := model.Endpoint(mux.Vars(r)["endpoint"])
	if !endpoint.Valid() {
		writeBadRequest(w, "endpoint must be onprem or cloud")
		return
	}
	ok, msg := h.Admin.TestConnection(r.Context(), endpoint)
	if !ok {
		writeJSON(w, http.StatusOK, Envelope{Success: false, Error: msg})
		return
	}
	writeOK(w, msg, nil)
}

func (h *Handler) CloudLogin(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Admin.CloudLogin(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Logged in", meta)
}

func (h *Handler) CloudLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Admin.CloudLogout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Logged out", nil)
}

// intQuery reads an optional non-negative integer; absent means zero.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
