// Package job provides the RenderJob aggregate: the mutable state of one
// slideshow render, its state machine, and the repository that stores
// snapshots of it.
package job

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/job/id"
	"github.com/maauso/slideshow/internal/timeline"
)

// Status represents the current stage of a render.
type Status string

const (
	// StatusIdle indicates the job was accepted but has not started.
	StatusIdle Status = "IDLE"
	// StatusProbing indicates the audio track is being measured.
	StatusProbing Status = "PROBING"
	// StatusPlanning indicates images are enumerated and the timeline computed.
	StatusPlanning Status = "PLANNING"
	// StatusComposing indicates source images are fitted onto the canvas.
	StatusComposing Status = "COMPOSING"
	// StatusAssembling indicates frames are sequenced into a stream.
	StatusAssembling Status = "ASSEMBLING"
	// StatusReconciling indicates the stream is aligned to the audio.
	StatusReconciling Status = "RECONCILING"
	// StatusEncoding indicates ffmpeg is producing the video.
	StatusEncoding Status = "ENCODING"
	// StatusVerifying indicates the output file is being checked.
	StatusVerifying Status = "VERIFYING"
	// StatusCompleted indicates the render finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled indicates the render was stopped on request.
	StatusCancelled Status = "CANCELLED"
	// StatusFailed indicates the render aborted with an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// RECONCILING is skipped in silent mode. VERIFYING cannot be cancelled:
// by then the output is already in place.
var validTransitions = map[Status][]Status{
	StatusIdle:        {StatusProbing, StatusCancelled, StatusFailed},
	StatusProbing:     {StatusPlanning, StatusCancelled, StatusFailed},
	StatusPlanning:    {StatusComposing, StatusCancelled, StatusFailed},
	StatusComposing:   {StatusAssembling, StatusCancelled, StatusFailed},
	StatusAssembling:  {StatusReconciling, StatusEncoding, StatusCancelled, StatusFailed},
	StatusReconciling: {StatusEncoding, StatusCancelled, StatusFailed},
	StatusEncoding:    {StatusVerifying, StatusCancelled, StatusFailed},
	StatusVerifying:   {StatusCompleted, StatusFailed},
	StatusCompleted:   {},
	StatusCancelled:   {},
	StatusFailed:      {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Params are the request parameters of a render.
type Params struct {
	// ImageDir is the directory holding the source images.
	ImageDir string
	// AudioPath is the soundtrack; empty in silent mode.
	AudioPath string
	// OutputPath is where the finished video is written.
	OutputPath string
	// Width and Height are the output resolution in pixels.
	Width  int
	Height int
	// TransitionSec is the crossfade length between slides.
	TransitionSec float64
	// Silent renders without audio using ImageDurationSec per slide.
	Silent           bool
	ImageDurationSec float64
}

// Job is a slideshow render aggregate.
// The pipeline is its only writer; the cancellation flag may be set from any
// goroutine.
type Job struct {
	mu sync.RWMutex

	cancelRequested atomic.Bool

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100). It never decreases.
	Progress int
	// Message describes the current step.
	Message string
	// Params are the request parameters.
	Params Params
	// Timeline is the planned timing, set once planning finishes.
	Timeline timeline.Timeline
	// OutputPath is the final video, set on completion.
	OutputPath string
	// OutputSize is the final video size in bytes.
	OutputSize int64
	// VideoURL is set once the output has been published.
	VideoURL string
	// Elapsed is the wall time the render took.
	Elapsed time.Duration
	// Error contains the error message if the job failed.
	Error string
	// ErrorKind classifies Error.
	ErrorKind apperr.Kind
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IDLE status.
func New(params Params) *Job {
	return NewWithID(id.Generate(), params)
}

// NewWithID creates a new Job with the specified ID and initial IDLE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, params Params) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusIdle,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch {
	case status == StatusProbing:
		j.StartedAt = j.UpdatedAt
	case status.IsTerminal():
		j.CompletedAt = j.UpdatedAt
		if !j.StartedAt.IsZero() {
			j.Elapsed = j.CompletedAt.Sub(j.StartedAt)
		}
	}

	return nil
}

// Complete records the output and transitions the job to COMPLETED with
// progress 100.
func (j *Job) Complete(outputPath string, size int64, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.OutputSize = size
	j.Progress = 100
	j.Message = message
	return nil
}

// Fail transitions the job to FAILED, recording the error and its kind.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if terr := j.transitionLocked(StatusFailed); terr != nil {
		return terr
	}
	if err != nil {
		j.Error = err.Error()
		j.ErrorKind = apperr.KindOf(err)
	}
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	j.ErrorKind = apperr.KindCancelled
	j.Message = "Cancelled after " + FormatElapsed(j.Elapsed)
	return nil
}

// FormatElapsed renders d as MM:SS.
func FormatElapsed(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// RequestCancel flags the job for cancellation. Safe from any goroutine.
func (j *Job) RequestCancel() {
	j.cancelRequested.Store(true)
}

// CancelRequested reports whether cancellation was requested.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress records a progress step. The percentage is clamped to
// 0-99 and never decreases; 100 is only reached through Complete.
// It reports whether the percentage or message changed.
func (j *Job) UpdateProgress(progress int, message string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = max(0, min(progress, 99))
	if progress < j.Progress {
		progress = j.Progress
	}
	if progress == j.Progress && message == j.Message {
		return false
	}
	j.Progress = progress
	j.Message = message
	j.UpdatedAt = time.Now()
	return true
}

// GetProgress returns the current percentage and message (thread-safe).
func (j *Job) GetProgress() (int, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress, j.Message
}

// SetTimeline records the planned timeline.
func (j *Job) SetTimeline(tl timeline.Timeline) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Timeline = tl
	j.UpdatedAt = time.Now()
}

// SetVideoURL records where the output was published.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status.IsTerminal()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	c := &Job{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Message:     j.Message,
		Params:      j.Params,
		Timeline:    j.Timeline,
		OutputPath:  j.OutputPath,
		OutputSize:  j.OutputSize,
		VideoURL:    j.VideoURL,
		Elapsed:     j.Elapsed,
		Error:       j.Error,
		ErrorKind:   j.ErrorKind,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	c.cancelRequested.Store(j.cancelRequested.Load())
	return c
}
