package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

// PullRequest is the optional window of a manual pull.
type PullRequest struct {
	DateFrom string `json:"dateFrom,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `json:"dateTo,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type jobAccepted struct {
	JobID string `json:"jobId"`
}

type scheduleStatus struct {
	Running  bool                         `json:"running"`
	NextRuns map[model.SyncType]time.Time `json:"nextRuns,omitempty"`
}

func (h *Handler) TriggerPull(w http.ResponseWriter, r *http.Request) {
	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeBadRequest(w, "dateFrom and dateTo must be yyyy-MM-dd")
			return
		}
		writeBadRequest(w, err.Error())
		return
	}

	window, err := messaging.TriggerMessage{SyncType: model.SyncPull, DateFrom: req.DateFrom, DateTo: req.DateTo}.Window()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if window.From != nil && window.To != nil && window.To.Before(*window.From) {
		writeBadRequest(w, "dateTo is before dateFrom")
		return
	}

	jobID, err := h.Scheduler.TriggerPullNow(r.Context(), window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Envelope{Success: true, Message: "Pull started", Data: jobAccepted{JobID: jobID}})
}

func (h *Handler) TriggerPush(w http.ResponseWriter, r *http.Request) {
	jobID, err := h.Scheduler.TriggerPushNow(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Envelope{Success: true, Message: "Push started", Data: jobAccepted{JobID: jobID}})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok := h.Jobs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, Envelope{Success: false, Error: "job " + id + " not found"})
		return
	}
	writeOK(w, "", st)
}

func (h *Handler) ListActiveJobs(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "", h.Jobs.Active())
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	runs, err := h.Admin.ListSyncRuns(r.Context(), model.SyncType(r.URL.Query().Get("direction")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", runs)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeBadRequest(w, "run id must be an integer")
		return
	}
	run, err := h.Admin.GetSyncRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "", run)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "", scheduleStatus{Running: h.Scheduler.Running(), NextRuns: h.Scheduler.NextRuns()})
}

func (h *Handler) RefreshSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.Scheduler.RefreshSchedule(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "Schedule refreshed", scheduleStatus{Running: h.Scheduler.Running(), NextRuns: h.Scheduler.NextRuns()})
}
