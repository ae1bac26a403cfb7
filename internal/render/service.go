package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/frame"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/media"
	"github.com/maauso/slideshow/internal/storage"
)

// DefaultOutputPath is used when a request names no output file.
const DefaultOutputPath = "slideshow.mp4"

// retainedRuns is how many finished runs keep their error for Wait.
// Older runs are answered from the repository.
const retainedRuns = 16

// Service errors.
var (
	// ErrJobActive is returned when a render is submitted while another runs.
	ErrJobActive = errors.New("a render job is already active")
	// ErrJobNotActive is returned when cancelling a job that is not running.
	ErrJobNotActive = errors.New("render job is not active")
	// ErrJobNotCompleted is returned when publishing a job without output.
	ErrJobNotCompleted = errors.New("render job has not completed")
)

// Defaults fill in request parameters left at their zero value.
type Defaults struct {
	Canvas           frame.Canvas
	TransitionSec    float64
	ImageDurationSec float64
}

// DefaultDefaults returns 1920x1080, a 0.5s crossfade and 3s per silent slide.
func DefaultDefaults() Defaults {
	return Defaults{
		Canvas:           frame.DefaultCanvas(),
		TransitionSec:    0.5,
		ImageDurationSec: 3.0,
	}
}

// Service accepts render requests and runs one at a time on a worker
// goroutine. Concurrent submissions are rejected, never queued.
type Service struct {
	runner   Runner
	repo     job.Repository
	storage  storage.Storage
	defaults Defaults
	logger   *slog.Logger

	mu       sync.Mutex
	active   *activeRun
	runs     map[string]*activeRun
	finished []string
}

type activeRun struct {
	job    *job.Job
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewService creates a new Service.
func NewService(runner Runner, repo job.Repository, store storage.Storage, defaults Defaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:   runner,
		repo:     repo,
		storage:  store,
		defaults: defaults,
		logger:   logger,
		runs:     make(map[string]*activeRun),
	}
}

// Defaults returns the parameter defaults of the service.
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// Normalize applies defaults to p and validates it without touching the
// file system.
func (s *Service) Normalize(p job.Params) (job.Params, error) {
	if p.Width == 0 && p.Height == 0 {
		p.Width, p.Height = s.defaults.Canvas.Width, s.defaults.Canvas.Height
	}
	if p.OutputPath == "" {
		p.OutputPath = DefaultOutputPath
	}
	if p.Silent {
		p.AudioPath = ""
		if p.ImageDurationSec == 0 {
			p.ImageDurationSec = s.defaults.ImageDurationSec
		}
	}

	if p.ImageDir == "" {
		return p, fmt.Errorf("image directory is required: %w", apperr.ErrInvalidInput)
	}
	if !p.Silent && p.AudioPath == "" {
		return p, fmt.Errorf("audio file is required unless silent: %w", apperr.ErrInvalidInput)
	}
	if err := (frame.Canvas{Width: p.Width, Height: p.Height}).Validate(); err != nil {
		return p, err
	}
	if p.TransitionSec < 0 {
		return p, fmt.Errorf("transition duration %v must not be negative: %w", p.TransitionSec, apperr.ErrInvalidInput)
	}
	if p.Silent && p.ImageDurationSec <= 0 {
		return p, fmt.Errorf("image duration %v must be positive: %w", p.ImageDurationSec, apperr.ErrInvalidInput)
	}
	return p, nil
}

// Submit validates p and starts rendering it in the background.
// It returns a snapshot of the new job, or ErrJobActive if a render is
// already running.
func (s *Service) Submit(ctx context.Context, p job.Params, obs Observer) (*job.Job, error) {
	p, err := s.Normalize(p)
	if err != nil {
		return nil, err
	}
	if err := s.checkInputs(p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrJobActive
	}

	j := job.New(p)
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	// The render outlives the submitting request; Cancel stops it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ar := &activeRun{job: j, cancel: cancel, done: make(chan struct{})}
	s.active = ar
	s.runs[j.ID] = ar

	s.logger.Info("render submitted", slog.String("job_id", j.ID))

	go s.work(runCtx, ar, obs)

	return j.Clone(), nil
}

func (s *Service) work(ctx context.Context, ar *activeRun, obs Observer) {
	defer ar.cancel()

	err := s.runner.Run(ctx, ar.job, obs)
	if saveErr := s.repo.Save(context.Background(), ar.job); saveErr != nil {
		s.logger.Warn("failed to save job", slog.String("job_id", ar.job.ID), slog.String("error", saveErr.Error()))
	}

	s.mu.Lock()
	ar.err = err
	if s.active == ar {
		s.active = nil
	}
	s.finished = append(s.finished, ar.job.ID)
	if len(s.finished) > retainedRuns {
		delete(s.runs, s.finished[0])
		s.finished = s.finished[1:]
	}
	s.mu.Unlock()
	close(ar.done)
}

// Cancel requests cancellation of the active job id.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()

	if ar == nil || ar.job.ID != id {
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrJobNotActive
	}

	s.logger.Info("render cancellation requested", slog.String("job_id", id))
	ar.job.RequestCancel()
	ar.cancel()
	return nil
}

// Wait blocks until job id finishes or ctx is done, and returns its final
// snapshot with the render error, if any.
func (s *Service) Wait(ctx context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	ar, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return s.settled(ctx, id)
	}

	select {
	case <-ar.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	snap, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap, ar.err
}

// settled answers Wait for a run no longer retained in memory.
func (s *Service) settled(ctx context.Context, id string) (*job.Job, error) {
	snap, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	switch snap.Status {
	case job.StatusCompleted:
		return snap, nil
	case job.StatusCancelled:
		return snap, fmt.Errorf("render %s: %w", id, apperr.ErrCancelled)
	case job.StatusFailed:
		return snap, fmt.Errorf("render %s: %s", id, snap.Error)
	default:
		return nil, fmt.Errorf("%s: %w", id, job.ErrJobNotFound)
	}
}

// Active returns a snapshot of the running job, if any.
func (s *Service) Active() (*job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, false
	}
	return s.active.job.Clone(), true
}

// GetJob returns the latest snapshot of job id.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns snapshots of every job, oldest first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return s.repo.List(ctx)
}

// Publish uploads the output of a completed job to S3 and records its URL.
// It returns storage.ErrS3NotConfigured when publishing is unavailable.
func (s *Service) Publish(ctx context.Context, id string) (string, error) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if j.Status != job.StatusCompleted || j.OutputPath == "" {
		return "", ErrJobNotCompleted
	}
	if j.VideoURL != "" {
		return j.VideoURL, nil
	}

	f, err := os.Open(j.OutputPath) // #nosec G304 - path was written by this process
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := fmt.Sprintf("renders/%s/%s", j.ID, filepath.Base(j.OutputPath))
	url, err := s.storage.UploadToS3(ctx, key, f)
	if err != nil {
		return "", err
	}

	j.SetVideoURL(url)
	if err := s.repo.Save(ctx, j); err != nil {
		return "", fmt.Errorf("save job: %w", err)
	}
	s.logger.Info("render published", slog.String("job_id", id), slog.String("url", url))
	return url, nil
}

// Shutdown cancels the active render, if any, and waits for it to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()
	if ar == nil {
		return nil
	}

	ar.job.RequestCancel()
	ar.cancel()
	select {
	case <-ar.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkInputs verifies that the inputs named by p exist.
func (s *Service) checkInputs(p job.Params) error {
	info, err := os.Stat(p.ImageDir)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("image directory %s: %w", p.ImageDir, apperr.ErrNotFound)
	case err != nil:
		return fmt.Errorf("stat image directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("image path %s is not a directory: %w", p.ImageDir, apperr.ErrInvalidInput)
	}

	if p.Silent {
		return nil
	}
	info, err = os.Stat(p.AudioPath)
	switch {
	case os.IsNotExist(err):
		return fmt.Errorf("audio file %s: %w", p.AudioPath, apperr.ErrNotFound)
	case err != nil:
		return fmt.Errorf("stat audio file: %w", err)
	case info.IsDir():
		return fmt.Errorf("audio path %s is a directory: %w", p.AudioPath, apperr.ErrInvalidInput)
	}
	if !media.IsSupportedAudio(p.AudioPath) {
		s.logger.Warn("unrecognized audio extension, ffprobe will decide", slog.String("path", p.AudioPath))
	}
	return nil
}
