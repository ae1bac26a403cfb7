package clip

import (
	"context"
	"fmt"
	"io"
	"math"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"

	"github.com/maauso/slideshow/internal/frame"
)

// decodedFrames bounds how many decoded frames stay in memory. A crossfade
// needs two; the third absorbs the loop boundary.
const decodedFrames = 3

// FrameFunc is called after each frame is written with the number of frames
// written so far and the total.
type FrameFunc func(done, total int)

// LoaderFunc loads a composed frame as packed RGB24 pixels.
type LoaderFunc func(path string, c frame.Canvas) ([]byte, error)

// FrameCount returns the number of frames the stream spans at fps.
func (s *Stream) FrameCount(fps int) int {
	if fps <= 0 {
		return 0
	}
	return int(math.Round(s.Duration() * float64(fps)))
}

// WriteFrames writes every frame of the stream to w as raw RGB24, sampled at
// k/fps seconds for frame k. Frames inside a crossfade are blended from the
// previous segment's frame.
func (s *Stream) WriteFrames(ctx context.Context, w io.Writer, fps int, onFrame FrameFunc) error {
	return s.writeFrames(ctx, w, fps, frame.LoadRGB24, onFrame)
}

func (s *Stream) writeFrames(ctx context.Context, w io.Writer, fps int, load LoaderFunc, onFrame FrameFunc) error {
	if fps <= 0 {
		return fmt.Errorf("frame rate %d must be positive", fps)
	}
	if len(s.Segments) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	decoded := cache.NewContext(ctx, cache.AsLRU[string, []byte](lru.WithCapacity(decodedFrames)))
	get := func(path string) ([]byte, error) {
		if pix, ok := decoded.Get(path); ok {
			return pix, nil
		}
		pix, err := load(path, s.Canvas)
		if err != nil {
			return nil, err
		}
		decoded.Set(path, pix)
		return pix, nil
	}

	total := s.FrameCount(fps)
	blended := make([]byte, s.Canvas.FrameBytes())

	seg := 0
	segStart := 0.0
	for k := 0; k < total; k++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write frames: %w", err)
		}

		t := float64(k) / float64(fps)
		for seg < len(s.Segments)-1 && t+1e-9 >= segStart+s.Segments[seg].Display {
			segStart += s.Segments[seg].Display
			seg++
		}

		cur := s.Segments[seg]
		pix, err := get(cur.FramePath)
		if err != nil {
			return err
		}

		local := t - segStart
		if seg > 0 && cur.TransitionIn > 0 && local < cur.TransitionIn {
			prev, err := get(s.Segments[seg-1].FramePath)
			if err != nil {
				return err
			}
			frame.Blend(blended, prev, pix, local/cur.TransitionIn)
			pix = blended
		}

		if _, err := w.Write(pix); err != nil {
			return fmt.Errorf("write frame %d: %w", k, err)
		}
		if onFrame != nil {
			onFrame(k+1, total)
		}
	}
	return nil
}
