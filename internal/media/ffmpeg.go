package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/maauso/slideshow/internal/apperr"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrDurationNotFound is returned when no duration can be parsed from tool output.
	ErrDurationNotFound = errors.New("duration not found in output")
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	timeRe     = regexp.MustCompile(`time=\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// FFmpegProber implements Prober using the ffprobe and ffmpeg CLIs.
type FFmpegProber struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpegProber creates a new FFmpegProber.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProber(ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpegProber {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegProber{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// AudioDuration returns the duration in seconds of an audio file.
// Container metadata is read with ffprobe; if that yields nothing usable the
// file is decoded end to end with ffmpeg and the decoded length is used.
func (p *FFmpegProber) AudioDuration(ctx context.Context, path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("audio file %s: %w", path, apperr.ErrNotFound)
		}
		return 0, fmt.Errorf("stat audio file %s: %w", path, apperr.ErrMediaRead)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("audio path %s is a directory: %w", path, apperr.ErrInvalidInput)
	}
	if !IsSupportedAudio(path) {
		p.logger.Warn("unrecognized audio extension, probing anyway",
			slog.String("path", path),
		)
	}

	duration, metaErr := p.metadataDuration(ctx, path)
	if metaErr == nil && duration > 0 {
		return duration, nil
	}
	if ctx.Err() != nil {
		return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
	}

	p.logger.Debug("audio metadata unavailable, decoding to measure duration",
		slog.String("path", path),
		slog.Any("error", metaErr),
	)

	duration, decodeErr := p.decodedDuration(ctx, path)
	if decodeErr == nil && duration > 0 {
		return duration, nil
	}
	if ctx.Err() != nil {
		return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}

	return 0, fmt.Errorf("could not determine audio duration of %s: %w (metadata: %v; decode: %v)",
		path, apperr.ErrMediaRead, metaErr, decodeErr)
}

// metadataDuration uses ffprobe to extract the container duration.
func (p *FFmpegProber) metadataDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeDuration(stdout.String())
}

// decodedDuration decodes the whole file to a null muxer and reads the
// duration from ffmpeg's stderr.
func (p *FFmpegProber) decodedDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-nostdin",
		"-i", path,
		"-vn",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration, err := parseDecodeOutput(stderr.String())
	if err != nil {
		if runErr != nil {
			return 0, &FFmpegError{Args: cmd.Args[1:], Stderr: stderr.String(), Err: runErr}
		}
		return 0, err
	}
	return duration, nil
}

// parseProbeDuration parses the bare duration printed by ffprobe.
// ffprobe prints "N/A" when the container carries no duration.
func parseProbeDuration(output string) (float64, error) {
	s := strings.TrimSpace(output)
	if s == "" || s == "N/A" {
		return 0, ErrDurationNotFound
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

// parseDecodeOutput extracts the decoded length from ffmpeg stderr.
// The last progress "time=" is the amount actually decoded and wins over the
// header "Duration:", which may be missing or an estimate.
func parseDecodeOutput(output string) (float64, error) {
	if matches := timeRe.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if d := hmsToSeconds(last[1], last[2], last[3]); d > 0 {
			return d, nil
		}
	}
	if m := durationRe.FindStringSubmatch(output); len(m) == 4 {
		return hmsToSeconds(m[1], m[2], m[3]), nil
	}
	return 0, ErrDurationNotFound
}

func hmsToSeconds(h, m, s string) float64 {
	hours, _ := strconv.ParseFloat(h, 64)
	minutes, _ := strconv.ParseFloat(m, 64)
	seconds, _ := strconv.ParseFloat(s, 64)
	return hours*3600 + minutes*60 + seconds
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Verify interface implementation at compile time.
var _ Prober = (*FFmpegProber)(nil)
