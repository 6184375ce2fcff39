// Package api holds the admin HTTP handlers: job inspection, editorial
// actions, policy management and the emergency queue.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"newsdesk/pressroom/internal/emergency"
	"newsdesk/pressroom/internal/lifecycle"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/scheduler"
	"newsdesk/pressroom/internal/server/pagination"
	"newsdesk/pressroom/internal/store"
)

const defaultLimit = 100
const maxLimit = 1000

// Handler holds the service dependencies for all admin endpoints.
type Handler struct {
	store     *store.Store
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
	queue     *emergency.Queue
}

// NewHandler creates an API handler.
func NewHandler(s *store.Store, lc *lifecycle.Manager, sched *scheduler.Scheduler, queue *emergency.Queue) *Handler {
	return &Handler{
		store:     s,
		lifecycle: lc,
		scheduler: sched,
		queue:     queue,
	}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/jobs", h.ListJobs)
	mux.HandleFunc("POST /v1/jobs/run", h.RunJobs)
	mux.HandleFunc("POST /v1/jobs/{id}/cancel", h.CancelJob)

	mux.HandleFunc("GET /v1/contents/{id}", h.GetContent)
	mux.HandleFunc("GET /v1/contents/{id}/logs", h.ListContentLogs)
	mux.HandleFunc("GET /v1/contents/{id}/revisions", h.ListContentRevisions)
	mux.HandleFunc("POST /v1/contents/{id}/approve", h.ApproveContent)
	mux.HandleFunc("POST /v1/contents/{id}/reject", h.RejectContent)
	mux.HandleFunc("POST /v1/contents/{id}/draft", h.SaveContentDraft)
	mux.HandleFunc("POST /v1/contents/{id}/correct", h.CorrectContent)
	mux.HandleFunc("POST /v1/contents/{id}/breaking", h.MarkContentBreaking)
	mux.HandleFunc("POST /v1/contents/{id}/retract", h.RetractContent)

	mux.HandleFunc("GET /v1/policies", h.ListPolicies)
	mux.HandleFunc("GET /v1/policies/{platform}", h.GetPolicy)
	mux.HandleFunc("PUT /v1/policies/{platform}", h.PutPolicy)

	mux.HandleFunc("GET /v1/rules", h.ListRules)
	mux.HandleFunc("POST /v1/rules/recompute", h.RecomputeRules)

	mux.HandleFunc("GET /v1/emergency", h.ListEmergency)
	mux.HandleFunc("POST /v1/emergency/{id}/publish", h.PublishEmergency)
	mux.HandleFunc("POST /v1/emergency/{id}/cancel", h.CancelEmergency)
}

// jobsResponse is the paginated job listing payload.
type jobsResponse struct {
	Jobs       []models.PublishJob `json:"jobs"`
	NextCursor *string             `json:"next_cursor,omitempty"`
}

// ListJobs handles paginated, filtered job listings.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			httpError(w, fmt.Errorf("invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	filter := store.JobFilter{Limit: limit + 1}

	if statusStr := query.Get("status"); statusStr != "" {
		status := models.JobStatus(statusStr)
		switch status {
		case models.JobPending, models.JobRunning, models.JobSucceeded, models.JobFailed, models.JobCancelled:
			filter.Status = &status
		default:
			httpError(w, fmt.Errorf("invalid 'status' parameter %q", statusStr), http.StatusBadRequest)
			return
		}
	}
	if fromStr := query.Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			httpError(w, fmt.Errorf("invalid 'from' parameter: use RFC3339"), http.StatusBadRequest)
			return
		}
		utc := from.UTC()
		filter.From = &utc
	}
	if toStr := query.Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			httpError(w, fmt.Errorf("invalid 'to' parameter: use RFC3339"), http.StatusBadRequest)
			return
		}
		utc := to.UTC()
		filter.To = &utc
	}
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		ts, id, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			httpError(w, fmt.Errorf("invalid 'cursor' parameter"), http.StatusBadRequest)
			return
		}
		filter.CursorCreatedAt = &ts
		filter.CursorID = &id
	}

	jobs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		httpError(w, err, http.StatusInternalServerError)
		return
	}

	resp := jobsResponse{Jobs: jobs}
	if len(jobs) > limit {
		resp.Jobs = jobs[:limit]
		last := resp.Jobs[len(resp.Jobs)-1]
		cursor := pagination.EncodeCursor(last.CreatedAt.UTC(), last.ID)
		resp.NextCursor = &cursor
	}
	if resp.Jobs == nil {
		resp.Jobs = []models.PublishJob{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// RunJobs triggers an immediate scheduler pass.
func (h *Handler) RunJobs(w http.ResponseWriter, r *http.Request) {
	stats, err := h.scheduler.RunDue(r.Context(), time.Now().UTC())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Manual scheduler pass failed")
		httpError(w, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CancelJob cancels a pending or running job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if job.Terminal() {
		httpError(w, fmt.Errorf("job %d is already %s", id, job.Status), http.StatusConflict)
		return
	}

	cancelled, err := h.store.CancelJob(r.Context(), id, time.Now().UTC())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !cancelled {
		httpError(w, fmt.Errorf("job %d is no longer cancellable", id), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// GetContent returns one content item.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.store.GetContentItem(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListContentLogs returns the channel ledger for a content item.
func (h *Handler) ListContentLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.store.ListLogsForContent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.ChannelPublishLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

// ListContentRevisions returns the revision trail for a content item.
func (h *Handler) ListContentRevisions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	revs, err := h.store.ListRevisions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if revs == nil {
		revs = []models.ContentRevision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// draftRequest is the body for approve, draft and correct.
type draftRequest struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Summary string `json:"summary"`
	Note    string `json:"note"`
}

func (h *Handler) ApproveContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if !readJSON(w, r, &req) {
		return
	}

	draft := lifecycle.Draft{Title: req.Title, Body: req.Body, Summary: req.Summary}
	if err := h.lifecycle.Approve(r.Context(), id, draft, req.Note); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approved": true})
}

func (h *Handler) RejectContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if err := h.lifecycle.Reject(r.Context(), id, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

func (h *Handler) SaveContentDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if !readJSON(w, r, &req) {
		return
	}

	draft := lifecycle.Draft{Title: req.Title, Body: req.Body, Summary: req.Summary}
	if err := h.lifecycle.SaveDraft(r.Context(), id, draft, req.Note); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

func (h *Handler) CorrectContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if !readJSON(w, r, &req) {
		return
	}

	draft := lifecycle.Draft{Title: req.Title, Body: req.Body, Summary: req.Summary}
	if err := h.lifecycle.Correct(r.Context(), id, draft, req.Note); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrected": true})
}

func (h *Handler) MarkContentBreaking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Priority        int      `json:"priority"`
		Note            string   `json:"note"`
		Reason          string   `json:"reason"`
		Keywords        []string `json:"keywords"`
		TargetPlatforms []string `json:"target_platforms"`
		PushRequired    bool     `json:"push_required"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	queueItemID, err := h.lifecycle.MarkBreaking(r.Context(), id, lifecycle.Escalation{
		Priority:        req.Priority,
		Note:            req.Note,
		Reason:          req.Reason,
		Keywords:        req.Keywords,
		TargetPlatforms: req.TargetPlatforms,
		PushRequired:    req.PushRequired,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emergency_item_id": queueItemID})
}

func (h *Handler) RetractContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if err := h.lifecycle.Retract(r.Context(), id, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"retracted": true})
}

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.store.ListPolicies(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if policies == nil {
		policies = []models.PublishingPolicy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	p, err := h.store.GetPolicy(r.Context(), platform)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// policyRequest mirrors the editable policy fields.
type policyRequest struct {
	Enabled              bool                `json:"enabled"`
	DailyLimit           int                 `json:"daily_limit"`
	MinIntervalMinutes   int                 `json:"min_interval_minutes"`
	AllowedWindows       []models.TimeWindow `json:"allowed_windows"`
	NightStart           string              `json:"night_start"`
	NightEnd             string              `json:"night_end"`
	NightSilencePush     bool                `json:"night_silence_push"`
	NightQueueForMorning bool                `json:"night_queue_for_morning"`
	EmergencyOverride    bool                `json:"emergency_override"`
	Timezone             string              `json:"timezone"`
}

func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	var req policyRequest
	if !readJSON(w, r, &req) {
		return
	}

	for _, win := range req.AllowedWindows {
		if _, err := models.ParseClock(win.Start); err != nil {
			httpError(w, err, http.StatusBadRequest)
			return
		}
		if _, err := models.ParseClock(win.End); err != nil {
			httpError(w, err, http.StatusBadRequest)
			return
		}
	}
	if (req.NightStart == "") != (req.NightEnd == "") {
		httpError(w, fmt.Errorf("night_start and night_end must be set together"), http.StatusBadRequest)
		return
	}

	p := models.NewPublishingPolicy(platform)
	p.IsEnabled = req.Enabled
	p.DailyLimit = req.DailyLimit
	p.MinIntervalMinutes = req.MinIntervalMinutes
	p.AllowedWindows = models.WindowList(req.AllowedWindows)
	if req.NightStart != "" {
		if _, err := models.ParseClock(req.NightStart); err != nil {
			httpError(w, err, http.StatusBadRequest)
			return
		}
		if _, err := models.ParseClock(req.NightEnd); err != nil {
			httpError(w, err, http.StatusBadRequest)
			return
		}
		p.NightStart = sql.NullString{String: req.NightStart, Valid: true}
		p.NightEnd = sql.NullString{String: req.NightEnd, Valid: true}
	}
	p.NightSilencePush = req.NightSilencePush
	p.NightQueueForMorning = req.NightQueueForMorning
	p.EmergencyOverride = req.EmergencyOverride
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			httpError(w, fmt.Errorf("invalid timezone %q", req.Timezone), http.StatusBadRequest)
			return
		}
		p.Timezone = req.Timezone
	}
	p.UpdatedAt = time.Now().UTC()

	if err := h.store.UpsertPolicy(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := h.store.ListRules(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ruleSet == nil {
		ruleSet = []models.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": ruleSet})
}

// RecomputeRules re-runs decisions for still-undecided or pre-approval items.
func (h *Handler) RecomputeRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID *int64 `json:"source_id"`
		Status   string `json:"status"`
		Limit    int    `json:"limit"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	filter := store.ContentFilter{SourceID: req.SourceID, Limit: req.Limit}
	if req.Status != "" {
		status := models.ContentStatus(req.Status)
		filter.Status = &status
	}

	report, err := h.lifecycle.RecomputeDecisions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) ListEmergency(w http.ResponseWriter, r *http.Request) {
	var status *models.EmergencyStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		s := models.EmergencyStatus(statusStr)
		switch s {
		case models.EmergencyPending, models.EmergencyPublishing, models.EmergencyPublished, models.EmergencyCancelled:
			status = &s
		default:
			httpError(w, fmt.Errorf("invalid 'status' parameter %q", statusStr), http.StatusBadRequest)
			return
		}
	}

	items, err := h.queue.List(r.Context(), status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []models.EmergencyQueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) PublishEmergency(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	stats, err := h.queue.Publish(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CancelEmergency(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.queue.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, fmt.Errorf("invalid id in path"), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpError(w, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, err error, status int) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var tErr *lifecycle.InvalidTransitionError

	switch {
	case errors.Is(err, store.ErrNotFound):
		httpError(w, err, http.StatusNotFound)
	case errors.As(err, &tErr),
		errors.Is(err, lifecycle.ErrAlreadyDecided),
		errors.Is(err, emergency.ErrNotPending):
		httpError(w, err, http.StatusConflict)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		httpError(w, fmt.Errorf("internal server error"), http.StatusInternalServerError)
	}
}
