// Package render drives a slideshow render from probing to a verified output
// file, and runs at most one render at a time on a worker goroutine.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/clip"
	"github.com/maauso/slideshow/internal/encoder"
	"github.com/maauso/slideshow/internal/frame"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/media"
	"github.com/maauso/slideshow/internal/storage"
	"github.com/maauso/slideshow/internal/timeline"
)

// Pipeline defaults.
const (
	DefaultVerifyAttempts = 5
	DefaultVerifyInterval = 500 * time.Millisecond
)

var errEmptyOutput = errors.New("output file is empty")

// Runner executes a render job to completion.
type Runner interface {
	Run(ctx context.Context, j *job.Job, obs Observer) error
}

// Pipeline runs the stages of a render in order:
// probe, plan, compose, assemble, reconcile, encode, verify.
type Pipeline struct {
	prober         media.Prober
	encoder        encoder.Encoder
	storage        storage.Storage
	repo           job.Repository
	logger         *slog.Logger
	fps            int
	verifyAttempts int
	verifyInterval time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRepository saves a job snapshot after every state or progress change.
func WithRepository(repo job.Repository) PipelineOption {
	return func(p *Pipeline) {
		p.repo = repo
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFPS sets the output frame rate.
func WithFPS(fps int) PipelineOption {
	return func(p *Pipeline) {
		if fps > 0 {
			p.fps = fps
		}
	}
}

// WithVerify sets how many times, and how often, the output is checked.
func WithVerify(attempts int, interval time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if attempts > 0 {
			p.verifyAttempts = attempts
		}
		if interval > 0 {
			p.verifyInterval = interval
		}
	}
}

// NewPipeline creates a new Pipeline.
func NewPipeline(prober media.Prober, enc encoder.Encoder, store storage.Storage, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		prober:         prober,
		encoder:        enc,
		storage:        store,
		logger:         slog.Default(),
		fps:            encoder.DefaultFPS,
		verifyAttempts: DefaultVerifyAttempts,
		verifyInterval: DefaultVerifyInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run renders j. On every exit path the job ends in a terminal state and its
// workspace is removed. A cancelled render returns an error wrapping
// apperr.ErrCancelled and leaves no file at the output path.
func (p *Pipeline) Run(ctx context.Context, j *job.Job, obs Observer) error {
	if obs == nil {
		obs = ObserverFunc(func(Event) {})
	}
	r := &run{
		Pipeline: p,
		job:      j,
		obs:      obs,
		logger:   p.logger.With(slog.String("job_id", j.ID)),
	}

	r.logger.Info("render started",
		slog.String("image_dir", j.Params.ImageDir),
		slog.String("audio", j.Params.AudioPath),
		slog.String("output", j.Params.OutputPath),
		slog.Bool("silent", j.Params.Silent),
	)

	err := r.execute(ctx)

	if rmErr := p.storage.RemoveWorkspace(context.WithoutCancel(ctx), j.ID); rmErr != nil {
		r.logger.Warn("failed to remove workspace", slog.String("error", rmErr.Error()))
	}

	switch {
	case err == nil:
		snap := j.Clone()
		r.logger.Info("render completed",
			slog.String("output", snap.OutputPath),
			slog.Int64("size_bytes", snap.OutputSize),
			slog.Duration("elapsed", snap.Elapsed),
		)
		return nil
	case r.cancelled(ctx, err):
		if cerr := j.Cancel(); cerr != nil {
			r.logger.Warn("cancel transition rejected", slog.String("status", string(j.GetStatus())))
		}
		r.save()
		r.notify()
		r.logger.Info("render cancelled", slog.Duration("elapsed", j.Clone().Elapsed))
		return fmt.Errorf("render %s: %w", j.ID, apperr.ErrCancelled)
	default:
		if ferr := j.Fail(err); ferr != nil {
			r.logger.Warn("fail transition rejected", slog.String("status", string(j.GetStatus())))
		}
		r.save()
		r.logger.Error("render failed",
			slog.String("error", err.Error()),
			slog.String("kind", string(apperr.KindOf(err))),
		)
		return err
	}
}

// run is the state of one Pipeline.Run call.
type run struct {
	*Pipeline
	job    *job.Job
	obs    Observer
	logger *slog.Logger
}

func (r *run) execute(ctx context.Context) error {
	params := r.job.Params
	canvas := frame.Canvas{Width: params.Width, Height: params.Height}
	if err := canvas.Validate(); err != nil {
		return err
	}

	r.progress(5, "Starting slideshow generation...")

	// Probing
	if err := r.advance(ctx, job.StatusProbing); err != nil {
		return err
	}
	var audio float64
	if params.Silent {
		r.progress(10, "Calculating video duration for silent mode...")
	} else {
		r.progress(10, "Getting audio duration...")
		d, err := r.prober.AudioDuration(ctx, params.AudioPath)
		if err != nil {
			return fmt.Errorf("probe audio: %w", err)
		}
		audio = d
		r.logger.Debug("audio probed", slog.Float64("duration_sec", audio))
	}
	r.progress(15, "Finding image files...")
	images, err := media.ListImages(params.ImageDir)
	if err != nil {
		return err
	}

	// Planning
	if err := r.advance(ctx, job.StatusPlanning); err != nil {
		return err
	}
	tl, err := timeline.Plan(len(images), audio, params.ImageDurationSec, params.Silent)
	if err != nil {
		return err
	}
	r.job.SetTimeline(tl)
	r.progress(18, fmt.Sprintf("Planned %d images at %.2fs each (%.2fs total)", tl.ImageCount, tl.PerImage, tl.Total))

	workspace, err := r.storage.CreateWorkspace(ctx, r.job.ID)
	if err != nil {
		return err
	}

	// Composing
	if err := r.advance(ctx, job.StatusComposing); err != nil {
		return err
	}
	r.progress(20, "Processing images...")
	frames := make([]string, 0, len(images))
	for i, path := range images {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.progress(20+30*i/len(images), fmt.Sprintf("Processing image %d/%d: %s", i+1, len(images), filepath.Base(path)))

		img, err := frame.Compose(path, canvas)
		if err != nil {
			return err
		}
		out := filepath.Join(workspace, fmt.Sprintf("img_%04d.jpg", i))
		if err := frame.SaveJPEG(out, img); err != nil {
			return err
		}
		frames = append(frames, out)
	}

	// Assembling
	if err := r.advance(ctx, job.StatusAssembling); err != nil {
		return err
	}
	r.progress(50, "Creating video clips...")
	stream, err := clip.Assemble(ctx, frames, tl, canvas, params.TransitionSec, func(i, n int) error {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.progress(50+20*i/n, fmt.Sprintf("Creating clip %d/%d", i+1, n))
		return nil
	})
	if err != nil {
		return err
	}
	r.progress(70, "Concatenating video clips...")

	// Reconciling
	if params.Silent {
		r.progress(75, "Preparing silent video...")
	} else {
		if err := r.advance(ctx, job.StatusReconciling); err != nil {
			return err
		}
		r.progress(75, "Loading audio...")
		r.progress(80, "Synchronizing video with audio...")
		video := stream.Duration()
		stream, err = clip.Reconcile(stream, clip.AudioTrack{Path: params.AudioPath, Duration: audio})
		if err != nil {
			return err
		}
		r.logger.Debug("stream reconciled",
			slog.Float64("video_sec", video),
			slog.Float64("audio_sec", audio),
			slog.Int("loops", clip.LoopCount(video, audio)),
		)
	}

	// Encoding
	if err := r.advance(ctx, job.StatusEncoding); err != nil {
		return err
	}
	r.progress(85, "Rendering final video...")
	rendered, err := r.encode(ctx, workspace, stream)
	if err != nil {
		return err
	}
	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	if _, err := r.storage.Promote(ctx, rendered, params.OutputPath); err != nil {
		return err
	}

	// Verifying. The output is in place, so cancellation no longer applies.
	if err := r.enter(job.StatusVerifying); err != nil {
		return err
	}
	r.progress(96, "Verifying output...")
	size, err := r.verify(context.WithoutCancel(ctx), params.OutputPath)
	if err != nil {
		_ = os.Remove(params.OutputPath)
		return err
	}

	elapsed := time.Since(r.job.Clone().StartedAt)
	msg := fmt.Sprintf("SUCCESS! Video created (%.1f MB) - Time: %s", float64(size)/(1024*1024), job.FormatElapsed(elapsed))
	if err := r.job.Complete(params.OutputPath, size, msg); err != nil {
		return err
	}
	r.save()
	r.notify()
	return nil
}

// encode renders stream into the workspace and returns the file path.
// A cancellation request observed between frames stops ffmpeg.
func (r *run) encode(ctx context.Context, workspace string, stream *clip.Stream) (string, error) {
	ext := filepath.Ext(r.job.Params.OutputPath)
	if ext == "" {
		ext = ".mp4"
	}
	out := filepath.Join(workspace, "render"+ext)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := encoder.Request{
		Source:   stream,
		Canvas:   stream.Canvas,
		FPS:      r.fps,
		Duration: stream.Duration(),
		Output:   out,
		OnFrame: func(done, total int) {
			if r.job.CancelRequested() {
				cancel()
				return
			}
			if total > 0 {
				r.progress(85+10*done/total, "Rendering final video...")
			}
		},
	}
	if stream.HasAudio() {
		req.AudioPath = stream.Audio.Path
	}

	if err := r.encoder.Encode(ctx, req); err != nil {
		return "", err
	}
	return out, nil
}

// verify waits for path to exist with a non-zero size, retrying a bounded
// number of times at a constant interval.
func (r *run) verify(ctx context.Context, path string) (int64, error) {
	var size int64
	op := func() error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return errEmptyOutput
		}
		size = info.Size()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.verifyInterval), uint64(r.verifyAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("output not ready", slog.String("error", err.Error()), slog.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return 0, fmt.Errorf("verify %s: %w: %w", path, apperr.ErrVerification, err)
	}
	return size, nil
}

// advance checks for cancellation, then moves the job to status.
func (r *run) advance(ctx context.Context, status job.Status) error {
	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	return r.enter(status)
}

func (r *run) enter(status job.Status) error {
	if err := r.job.TransitionTo(status); err != nil {
		return fmt.Errorf("%s -> %s: %w", r.job.GetStatus(), status, err)
	}
	r.logger.Debug("render stage", slog.String("status", string(status)))
	r.save()
	return nil
}

// checkpoint returns an ErrCancelled error once cancellation was requested.
func (r *run) checkpoint(ctx context.Context) error {
	if r.job.CancelRequested() {
		return apperr.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrCancelled, err)
	}
	return nil
}

func (r *run) cancelled(ctx context.Context, err error) bool {
	if r.job.GetStatus() == job.StatusVerifying {
		return false
	}
	return apperr.IsCancelled(err) ||
		r.job.CancelRequested() ||
		(ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

// progress records a step and notifies the observer when anything changed.
func (r *run) progress(percent int, message string) {
	if r.job.UpdateProgress(percent, message) {
		r.save()
		r.notify()
	}
}

func (r *run) notify() {
	snap := r.job.Clone()
	r.obs.OnProgress(Event{
		JobID:   snap.ID,
		Status:  snap.Status,
		Percent: snap.Progress,
		Message: snap.Message,
		Time:    snap.UpdatedAt,
	})
}

func (r *run) save() {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(context.Background(), r.job); err != nil {
		r.logger.Warn("failed to save job", slog.String("error", err.Error()))
	}
}

// Verify interface implementation at compile time.
var _ Runner = (*Pipeline)(nil)
