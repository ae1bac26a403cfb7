// Package server exposes the render service over a local HTTP API.
// Request and response DTOs live here, separate from the job domain types.
package server

import (
	"time"

	"github.com/maauso/slideshow/internal/job"
)

// CreateRenderRequest is the HTTP request body for starting a render.
type CreateRenderRequest struct {
	// ImageDir is the directory holding the slides.
	ImageDir string `json:"image_dir" validate:"required"`
	// AudioPath is the soundtrack. Required unless Silent is set.
	AudioPath string `json:"audio_path" validate:"required_unless=Silent true"`
	// OutputPath is the destination video. Defaults to slideshow.mp4.
	OutputPath string `json:"output_path"`
	// Resolution is WIDTHxHEIGHT, e.g. 1280x720.
	Resolution string `json:"resolution" validate:"omitempty,resolution"`
	// TransitionSec is the crossfade length. Nil keeps the server default.
	TransitionSec *float64 `json:"transition_sec" validate:"omitempty,gte=0"`
	// Silent renders without audio.
	Silent bool `json:"silent"`
	// ImageDurationSec is the per-slide duration in silent mode.
	ImageDurationSec float64 `json:"image_duration_sec" validate:"gte=0"`
}

// CreateRenderResponse is the HTTP response after accepting a render.
type CreateRenderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RenderResponse is the HTTP response describing one render.
type RenderResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	// ImageCount and DurationSec are known once planning finishes.
	ImageCount  int     `json:"image_count,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`

	// OutputPath and OutputSize are set on completion.
	OutputPath string    `json:"output_path,omitempty"`
	OutputSize int64     `json:"output_size,omitempty"`
	VideoURL   string    `json:"video_url,omitempty"`
	ElapsedSec float64   `json:"elapsed_sec,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListRendersResponse is the HTTP response for listing renders.
type ListRendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

// PublishResponse is the HTTP response after publishing an output.
type PublishResponse struct {
	VideoURL string `json:"video_url"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	// ActiveRender is the ID of the running render, if any.
	ActiveRender string `json:"active_render,omitempty"`
}

func newRenderResponse(j *job.Job) RenderResponse {
	resp := RenderResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Progress:    j.Progress,
		Message:     j.Message,
		ImageCount:  j.Timeline.ImageCount,
		DurationSec: j.Timeline.Total,
		VideoURL:    j.VideoURL,
		Error:       j.Error,
		ErrorKind:   string(j.ErrorKind),
		CreatedAt:   j.CreatedAt,
	}
	if j.Status == job.StatusCompleted {
		resp.OutputPath = j.OutputPath
		resp.OutputSize = j.OutputSize
	}
	if j.Elapsed > 0 {
		resp.ElapsedSec = j.Elapsed.Seconds()
	}
	return resp
}
