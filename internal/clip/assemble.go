package clip

import (
	"context"
	"fmt"
	"math"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/frame"
	"github.com/maauso/slideshow/internal/timeline"
)

// ClipFunc is called before each segment is created with its zero-based
// index and the segment count. Returning an error aborts assembly.
type ClipFunc func(i, n int) error

// Assemble builds the stream for the composed frames, in order.
// Every segment is shown for tl.PerImage seconds; all but the first
// crossfade in over min(transition, tl.PerImage) seconds.
func Assemble(ctx context.Context, frames []string, tl timeline.Timeline, canvas frame.Canvas, transition float64, onClip ClipFunc) (*Stream, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to assemble: %w", apperr.ErrEmptyInput)
	}
	if len(frames) != tl.ImageCount {
		return nil, fmt.Errorf("%d frames for a timeline of %d images: %w", len(frames), tl.ImageCount, apperr.ErrInvalidInput)
	}
	if tl.PerImage <= 0 {
		return nil, fmt.Errorf("display duration %v: %w", tl.PerImage, apperr.ErrInvalidInput)
	}
	if transition < 0 || math.IsNaN(transition) {
		return nil, fmt.Errorf("transition duration %v must not be negative: %w", transition, apperr.ErrInvalidInput)
	}
	if err := canvas.Validate(); err != nil {
		return nil, err
	}

	crossfade := min(transition, tl.PerImage)

	stream := &Stream{
		Canvas:   canvas,
		Segments: make([]Segment, 0, len(frames)),
	}
	for i, path := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		if onClip != nil {
			if err := onClip(i, len(frames)); err != nil {
				return nil, err
			}
		}

		seg := Segment{
			Index:     i,
			FramePath: path,
			Display:   tl.PerImage,
		}
		if i > 0 {
			seg.TransitionIn = crossfade
		}
		stream.Segments = append(stream.Segments, seg)
	}

	return stream, nil
}
