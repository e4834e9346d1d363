package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	jobID, err := h.orchestrator.CreateJob(r.Context(), briefFromRequest(req))
	if err != nil {
		h.respondServiceError(w, r, "create job", err)
		return
	}

	w.Header().Set("Location", h.opts.BasePath+"/api/jobs/"+jobID)
	h.respondJSON(w, http.StatusAccepted, api.CreateJobResponse{
		JobID: jobID,
		State: "created",
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.orchestrator.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, "get job status", err)
		return
	}

	h.respondJSON(w, http.StatusOK, toStatus(status))
}

// GetResults handles GET /api/jobs/{id}/results
func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	candidates, err := h.orchestrator.GetResults(r.Context(), jobID)
	if err != nil {
		h.respondServiceError(w, r, "get results", err)
		return
	}

	results := make([]api.Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, toResult(c))
	}
	h.respondJSON(w, http.StatusOK, api.ResultsResponse{JobID: jobID, Results: results})
}

// GetFollowup handles GET /api/jobs/{id}/followup
func (h *Handler) GetFollowup(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	followup, err := h.orchestrator.GetFollowup(r.Context(), jobID)
	if err != nil {
		h.respondServiceError(w, r, "get follow-up", err)
		return
	}

	h.respondJSON(w, http.StatusOK, toFollowup(jobID, followup))
}

// Resume handles POST /api/jobs/{id}/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req api.ResumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	jobID := chi.URLParam(r, "id")
	if err := h.orchestrator.Resume(r.Context(), jobID, req.Answers); err != nil {
		h.respondServiceError(w, r, "resume job", err)
		return
	}

	h.respondStatus(w, r, jobID)
}

// Cancel handles POST /api/jobs/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.orchestrator.Cancel(r.Context(), jobID); err != nil {
		h.respondServiceError(w, r, "cancel job", err)
		return
	}

	h.respondStatus(w, r, jobID)
}

// respondStatus answers an accepted command with the job's current status
func (h *Handler) respondStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	status, err := h.orchestrator.GetStatus(r.Context(), jobID)
	if err != nil {
		h.respondServiceError(w, r, "get job status", err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, toStatus(status))
}

// Health handles GET /api/healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, api.HealthResponse{
		Status:        "ok",
		ActiveRunners: h.orchestrator.ActiveRunners(),
	})
}
