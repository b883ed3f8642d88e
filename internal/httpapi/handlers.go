// internal/httpapi/handlers.go
package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/vespa-academy/homepage-backend/internal/bulkupdate"
	"github.com/vespa-academy/homepage-backend/internal/consent"
	"github.com/vespa-academy/homepage-backend/internal/jobstore"
	"github.com/vespa-academy/homepage-backend/internal/knack"
	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

// Handler serves the portal's three endpoints. It never mutates jobs itself;
// all writes go through the orchestrator.
type Handler struct {
	orchestrator *bulkupdate.Orchestrator
	store        jobstore.Store
	consent      *consent.Service
	// creds are the server-side Knack credentials, used when the caller
	// supplies none on a bulk update.
	creds  knack.Credentials
	logger *slog.Logger
}

func NewHandler(orchestrator *bulkupdate.Orchestrator, store jobstore.Store, consentSvc *consent.Service, creds knack.Credentials, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		consent:      consentSvc,
		creds:        creds,
		logger:       logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req schema.BulkUpdateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	creds := h.requestCredentials(r)
	if !creds.Valid() {
		writeError(w, r, http.StatusBadRequest, "Missing Knack credentials",
			fmt.Sprintf("Provide %s and %s headers or configure them server-side", knack.HeaderApplicationID, knack.HeaderAPIKey))
		return
	}
	if req.TargetID == "" || req.FieldName == "" {
		writeError(w, r, http.StatusBadRequest, "Missing required parameters", "targetId and fieldName are required")
		return
	}

	job, err := h.orchestrator.Submit(r.Context(), req, creds)
	if err != nil {
		h.logger.Error("submit bulk update failed", "target_id", req.TargetID, "err", err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	render.JSON(w, r, schema.BulkUpdateResponse{
		Success:   true,
		JobID:     job.ID,
		Message:   fmt.Sprintf("Bulk update initiated for %s", req.ToggleType),
		StatusURL: "/job-status/" + job.ID,
	})
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "Job ID is required", "")
		return
	}

	job, err := h.store.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Job not found", "")
		return
	}
	if err != nil {
		h.logger.Error("load job failed", "job_id", jobID, "err", err)
		writeError(w, r, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	render.JSON(w, r, schema.JobStatusResponse{
		Job:                    *job,
		EstimatedTimeRemaining: bulkupdate.EstimateTimeRemaining(job, time.Now()),
	})
}

func (h *Handler) ConsentSubmit(w http.ResponseWriter, r *http.Request) {
	var req schema.ConsentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := h.consent.Submit(r.Context(), req)
	if err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	render.JSON(w, r, schema.ConsentResponse{
		Success:     true,
		Message:     "Consent form submitted successfully",
		Session:     result.Session,
		RedirectURL: result.RedirectURL,
	})
}

func (h *Handler) writeConsentError(w http.ResponseWriter, r *http.Request, err error) {
	var validation consent.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, r, http.StatusBadRequest, "Invalid submission", validation.Message)
	case errors.Is(err, consent.ErrRecordNotFound):
		writeError(w, r, http.StatusNotFound, "Student record not found",
			"No account found with this email address. Please contact your administrator.")
	case errors.Is(err, consent.ErrNotConfigured):
		h.logger.Error("consent submission without server credentials")
		writeError(w, r, http.StatusInternalServerError, "Server configuration error", "Missing Knack API credentials")
	default:
		h.logger.Error("consent submission failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "Submission failed", err.Error())
	}
}

// requestCredentials prefers caller-supplied headers, falling back to the
// server configuration. Neither is silently defaulted to anything else.
func (h *Handler) requestCredentials(r *http.Request) knack.Credentials {
	creds := knack.Credentials{
		ApplicationID: r.Header.Get(knack.HeaderApplicationID),
		APIKey:        r.Header.Get(knack.HeaderAPIKey),
	}
	if creds.ApplicationID == "" {
		creds.ApplicationID = h.creds.ApplicationID
	}
	if creds.APIKey == "" {
		creds.APIKey = h.creds.APIKey
	}
	return creds
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	render.Status(r, status)
	render.JSON(w, r, schema.ErrorResponse{Error: message, Details: details})
}
