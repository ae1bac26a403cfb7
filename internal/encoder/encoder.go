// Package encoder renders a frame stream, plus an optional audio track, into
// an H.264/AAC video file.
package encoder

import (
	"context"
	"io"

	"github.com/maauso/slideshow/internal/clip"
	"github.com/maauso/slideshow/internal/frame"
)

// Output defaults.
const (
	DefaultFPS        = 24
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPreset     = "medium"
)

// FrameSource produces raw RGB24 frames.
type FrameSource interface {
	FrameCount(fps int) int
	WriteFrames(ctx context.Context, w io.Writer, fps int, onFrame clip.FrameFunc) error
}

// Request describes one encode.
type Request struct {
	Source FrameSource
	Canvas frame.Canvas
	FPS    int
	// Duration caps the output length in seconds.
	Duration float64
	// AudioPath is muxed as the soundtrack when set.
	AudioPath string
	Output    string
	OnFrame   clip.FrameFunc
}

// Encoder writes the video described by a Request to Request.Output.
type Encoder interface {
	Encode(ctx context.Context, req Request) error
}
