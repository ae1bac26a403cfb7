package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/media"
)

// FFmpegEncoder implements Encoder by piping raw frames into the ffmpeg CLI.
type FFmpegEncoder struct {
	ffmpegPath string
	videoCodec string
	audioCodec string
	preset     string
	logger     *slog.Logger
}

// Option configures an FFmpegEncoder.
type Option func(*FFmpegEncoder)

// WithVideoCodec sets the video codec.
func WithVideoCodec(codec string) Option {
	return func(e *FFmpegEncoder) {
		e.videoCodec = codec
	}
}

// WithAudioCodec sets the audio codec.
func WithAudioCodec(codec string) Option {
	return func(e *FFmpegEncoder) {
		e.audioCodec = codec
	}
}

// WithPreset sets the x264 preset.
func WithPreset(preset string) Option {
	return func(e *FFmpegEncoder) {
		e.preset = preset
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *FFmpegEncoder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegEncoder(ffmpegPath string, opts ...Option) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEncoder{
		ffmpegPath: ffmpegPath,
		videoCodec: DefaultVideoCodec,
		audioCodec: DefaultAudioCodec,
		preset:     DefaultPreset,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode implements Encoder. Frames are streamed to ffmpeg's stdin as they
// are produced, so at most a few decoded frames are held in memory.
func (e *FFmpegEncoder) Encode(ctx context.Context, req Request) error {
	if req.Source == nil {
		return fmt.Errorf("no frame source: %w", apperr.ErrInvalidInput)
	}
	if err := req.Canvas.Validate(); err != nil {
		return err
	}
	if req.Output == "" {
		return fmt.Errorf("no output path: %w", apperr.ErrInvalidInput)
	}
	if req.FPS <= 0 {
		req.FPS = DefaultFPS
	}

	args := e.buildArgs(req)
	e.logger.Debug("starting ffmpeg encode",
		"output", req.Output,
		"frames", req.Source.FrameCount(req.FPS),
		"has_audio", req.AudioPath != "",
	)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w: %w", apperr.ErrEncoding, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w: %w", apperr.ErrEncoding, err)
	}

	writeErr := req.Source.WriteFrames(ctx, stdin, req.FPS, req.OnFrame)
	closeErr := stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}
	if waitErr != nil {
		return fmt.Errorf("encode %s: %w: %w", req.Output, apperr.ErrEncoding, &media.FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    waitErr,
		})
	}
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("stream frames to ffmpeg: %w: %w", apperr.ErrEncoding, err)
	}
	return nil
}

// evenPadFilter grows an odd frame by one black row or column.
const evenPadFilter = "pad=ceil(iw/2)*2:ceil(ih/2)*2"

// buildArgs returns the ffmpeg arguments, without the binary, for req.
func (e *FFmpegEncoder) buildArgs(req Request) []string {
	fps := strconv.Itoa(req.FPS)

	video := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgb24",
		"s":       req.Canvas.String(),
		"r":       fps,
	})

	outArgs := ffmpeg.KwArgs{
		"c:v":      e.videoCodec,
		"preset":   e.preset,
		"pix_fmt":  "yuv420p",
		"r":        fps,
		"movflags": "+faststart",
	}
	// yuv420p subsamples chroma 2x2, so libx264 needs even dimensions.
	if req.Canvas.Width%2 != 0 || req.Canvas.Height%2 != 0 {
		outArgs["vf"] = evenPadFilter
	}
	if req.Duration > 0 {
		outArgs["t"] = strconv.FormatFloat(req.Duration, 'f', 3, 64)
	}

	streams := []*ffmpeg.Stream{video}
	if req.AudioPath != "" {
		streams = append(streams, ffmpeg.Input(req.AudioPath).Audio())
		outArgs["c:a"] = e.audioCodec
	}

	return ffmpeg.Output(streams, req.Output, outArgs).
		GlobalArgs("-hide_banner", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegEncoder)(nil)
