package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/frame"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/render"
	"github.com/maauso/slideshow/internal/storage"
)

// RenderService is the subset of render.Service used by the handlers.
type RenderService interface {
	Defaults() render.Defaults
	Submit(ctx context.Context, p job.Params, obs render.Observer) (*job.Job, error)
	Cancel(ctx context.Context, id string) error
	Active() (*job.Job, bool)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	Publish(ctx context.Context, id string) (string, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   RenderService
	validator *validator.Validate
	logger    *slog.Logger
	observer  render.Observer
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithObserver attaches obs to every render started over HTTP.
func WithObserver(obs render.Observer) HandlerOption {
	return func(h *Handlers) {
		h.observer = obs
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service RenderService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: newValidator(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
		_, err := frame.ParseCanvas(fl.Field().String())
		return err == nil
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if active, ok := h.service.Active(); ok {
		resp.ActiveRender = active.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateRender handles POST /renders requests.
func (h *Handlers) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req CreateRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	params, err := h.toParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), string(apperr.KindOf(err)))
		return
	}

	created, err := h.service.Submit(r.Context(), params, h.observer)
	if err != nil {
		switch {
		case errors.Is(err, render.ErrJobActive):
			writeError(w, http.StatusConflict, err.Error(), "RENDER_ACTIVE")
		case apperr.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error(), string(apperr.KindOf(err)))
		default:
			h.logger.Error("failed to submit render",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit render", "RENDER_SUBMIT_FAILED")
		}
		return
	}

	h.logger.Info("render accepted",
		slog.String("job_id", created.ID),
		slog.String("image_dir", params.ImageDir),
		slog.Bool("silent", params.Silent),
	)

	writeJSON(w, http.StatusAccepted, CreateRenderResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

func (h *Handlers) toParams(req CreateRenderRequest) (job.Params, error) {
	defaults := h.service.Defaults()
	p := job.Params{
		ImageDir:         req.ImageDir,
		AudioPath:        req.AudioPath,
		OutputPath:       req.OutputPath,
		Width:            defaults.Canvas.Width,
		Height:           defaults.Canvas.Height,
		TransitionSec:    defaults.TransitionSec,
		Silent:           req.Silent,
		ImageDurationSec: req.ImageDurationSec,
	}
	if req.Resolution != "" {
		c, err := frame.ParseCanvas(req.Resolution)
		if err != nil {
			return p, err
		}
		p.Width, p.Height = c.Width, c.Height
	}
	if req.TransitionSec != nil {
		p.TransitionSec = *req.TransitionSec
	}
	return p, nil
}

// ListRenders handles GET /renders requests.
func (h *Handlers) ListRenders(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list renders", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list renders", "RENDER_LIST_FAILED")
		return
	}

	resp := ListRendersResponse{Renders: make([]RenderResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Renders = append(resp.Renders, newRenderResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRender handles GET /renders/{id} requests.
func (h *Handlers) GetRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "render ID is required", "MISSING_RENDER_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err, "failed to get render", "RENDER_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, newRenderResponse(found))
}

// CancelRender handles DELETE /renders/{id} requests.
// Cancellation is asynchronous; poll GET /renders/{id} for CANCELLED.
func (h *Handlers) CancelRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "render ID is required", "MISSING_RENDER_ID")
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, render.ErrJobNotActive) {
			writeError(w, http.StatusConflict, err.Error(), "RENDER_NOT_ACTIVE")
			return
		}
		h.writeLookupError(w, id, err, "failed to cancel render", "RENDER_CANCEL_FAILED")
		return
	}

	found, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err, "failed to get render", "RENDER_FETCH_FAILED")
		return
	}
	writeJSON(w, http.StatusAccepted, newRenderResponse(found))
}

// PublishRender handles POST /renders/{id}/publish requests.
func (h *Handlers) PublishRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "render ID is required", "MISSING_RENDER_ID")
		return
	}

	url, err := h.service.Publish(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrS3NotConfigured):
			writeError(w, http.StatusNotImplemented, "S3 publishing is not configured", "S3_NOT_CONFIGURED")
		case errors.Is(err, render.ErrJobNotCompleted):
			writeError(w, http.StatusConflict, err.Error(), "RENDER_NOT_COMPLETED")
		default:
			h.writeLookupError(w, id, err, "failed to publish render", "RENDER_PUBLISH_FAILED")
		}
		return
	}
	writeJSON(w, http.StatusOK, PublishResponse{VideoURL: url})
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, id string, err error, message, code string) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "render not found", "RENDER_NOT_FOUND")
		return
	}
	h.logger.Error(message,
		slog.String("job_id", id),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, message, code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// Verify interface implementation at compile time.
var _ RenderService = (*render.Service)(nil)
