package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/frame"
	"github.com/maauso/slideshow/internal/timeline"
)

var tinyCanvas = frame.Canvas{Width: 1, Height: 1}

func framePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("img_%04d.jpg", i)
	}
	return paths
}

func mustPlan(t *testing.T, count int, audio, fixed float64, silent bool) timeline.Timeline {
	t.Helper()
	tl, err := timeline.Plan(count, audio, fixed, silent)
	require.NoError(t, err)
	return tl
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()

	t.Run("first segment has no transition", func(t *testing.T) {
		tl := mustPlan(t, 3, 6, 0, false)
		s, err := Assemble(ctx, framePaths(3), tl, tinyCanvas, 0.5, nil)
		require.NoError(t, err)
		require.Len(t, s.Segments, 3)

		assert.Equal(t, 0.0, s.Segments[0].TransitionIn)
		assert.Equal(t, 0.5, s.Segments[1].TransitionIn)
		assert.Equal(t, 0.5, s.Segments[2].TransitionIn)
		for i, seg := range s.Segments {
			assert.Equal(t, i, seg.Index)
			assert.Equal(t, fmt.Sprintf("img_%04d.jpg", i), seg.FramePath)
			assert.InDelta(t, 2.0, seg.Display, 1e-9)
		}
		assert.False(t, s.HasAudio())
	})

	t.Run("transition clamped to display duration", func(t *testing.T) {
		tl := mustPlan(t, 2, 0, 1.0, true)
		s, err := Assemble(ctx, framePaths(2), tl, tinyCanvas, 5, nil)
		require.NoError(t, err)
		assert.Equal(t, 1.0, s.Segments[1].TransitionIn)
	})

	t.Run("zero transition yields hard cuts", func(t *testing.T) {
		tl := mustPlan(t, 4, 0, 3.0, true)
		s, err := Assemble(ctx, framePaths(4), tl, tinyCanvas, 0, nil)
		require.NoError(t, err)
		for _, seg := range s.Segments {
			assert.Zero(t, seg.TransitionIn)
		}
		assert.InDelta(t, 12.0, s.Duration(), 1e-9)
	})

	t.Run("transitions never add time", func(t *testing.T) {
		for _, transition := range []float64{0, 0.1, 0.5, 1.9, 2.0} {
			tl := mustPlan(t, 5, 10, 0, false)
			s, err := Assemble(ctx, framePaths(5), tl, tinyCanvas, transition, nil)
			require.NoError(t, err)
			assert.InDelta(t, 10.0, s.Duration(), 1e-9, "transition=%v", transition)
		}
	})

	t.Run("reports every clip", func(t *testing.T) {
		tl := mustPlan(t, 3, 3, 0, false)
		var seen []int
		_, err := Assemble(ctx, framePaths(3), tl, tinyCanvas, 0, func(i, n int) error {
			assert.Equal(t, 3, n)
			seen = append(seen, i)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, seen)
	})

	t.Run("hook error aborts", func(t *testing.T) {
		tl := mustPlan(t, 3, 3, 0, false)
		stop := errors.New("stop")
		_, err := Assemble(ctx, framePaths(3), tl, tinyCanvas, 0, func(i, n int) error {
			if i == 1 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		tl := mustPlan(t, 2, 2, 0, false)
		_, err := Assemble(cctx, framePaths(2), tl, tinyCanvas, 0, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid input", func(t *testing.T) {
		tl := mustPlan(t, 2, 2, 0, false)

		_, err := Assemble(ctx, nil, tl, tinyCanvas, 0, nil)
		assert.ErrorIs(t, err, apperr.ErrEmptyInput)

		_, err = Assemble(ctx, framePaths(3), tl, tinyCanvas, 0, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		_, err = Assemble(ctx, framePaths(2), tl, tinyCanvas, -0.1, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		_, err = Assemble(ctx, framePaths(2), tl, frame.Canvas{}, 0, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestStream_Truncate(t *testing.T) {
	tl := mustPlan(t, 4, 8, 0, false)
	s, err := Assemble(context.Background(), framePaths(4), tl, tinyCanvas, 0.5, nil)
	require.NoError(t, err)

	out := s.Truncate(5.0)
	require.Len(t, out.Segments, 3)
	assert.InDelta(t, 5.0, out.Duration(), 1e-9)
	assert.InDelta(t, 1.0, out.Segments[2].Display, 1e-9)

	short := s.Truncate(4.2)
	last := short.Segments[len(short.Segments)-1]
	assert.InDelta(t, 0.2, last.Display, 1e-9)
	assert.InDelta(t, 0.2, last.TransitionIn, 1e-9, "transition must not exceed display")

	// The source is untouched.
	assert.InDelta(t, 8.0, s.Duration(), 1e-9)
}

func TestStream_Loop(t *testing.T) {
	tl := mustPlan(t, 2, 4, 0, false)
	s, err := Assemble(context.Background(), framePaths(2), tl, tinyCanvas, 0.5, nil)
	require.NoError(t, err)

	out := s.Loop(3)
	require.Len(t, out.Segments, 6)
	assert.InDelta(t, 12.0, out.Duration(), 1e-9)
	for i, seg := range out.Segments {
		assert.Equal(t, i%2, seg.Index, "whole sequence repeats in order")
	}
	assert.Zero(t, out.Segments[2].TransitionIn, "each repetition starts with a hard cut")
}

func TestLoopCount(t *testing.T) {
	assert.Equal(t, 3, LoopCount(8, 20))
	assert.Equal(t, 2, LoopCount(10, 20))
	assert.Equal(t, 1, LoopCount(10, 10))
	assert.Equal(t, 0, LoopCount(0, 10))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("shorter stream is looped and trimmed", func(t *testing.T) {
		tl := mustPlan(t, 4, 0, 2.0, true)
		s, err := Assemble(ctx, framePaths(4), tl, tinyCanvas, 0.5, nil)
		require.NoError(t, err)
		require.InDelta(t, 8.0, s.Duration(), 1e-9)

		assert.Equal(t, 3, LoopCount(s.Duration(), 20))

		out, err := Reconcile(s, AudioTrack{Path: "ep.mp3", Duration: 20.0})
		require.NoError(t, err)
		assert.InDelta(t, 20.0, out.Duration(), 1e-9)
		require.Len(t, out.Segments, 10)
		assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3, 0, 1}, indexes(out))
		require.True(t, out.HasAudio())
		assert.Equal(t, "ep.mp3", out.Audio.Path)
	})

	t.Run("longer stream is trimmed", func(t *testing.T) {
		tl := mustPlan(t, 3, 0, 3.0, true)
		s, err := Assemble(ctx, framePaths(3), tl, tinyCanvas, 0.5, nil)
		require.NoError(t, err)

		out, err := Reconcile(s, AudioTrack{Path: "ep.mp3", Duration: 7.5})
		require.NoError(t, err)
		assert.InDelta(t, 7.5, out.Duration(), 1e-9)
		assert.Equal(t, []int{0, 1, 2}, indexes(out))
	})

	t.Run("equal stream passes through", func(t *testing.T) {
		tl := mustPlan(t, 5, 10, 0, false)
		s, err := Assemble(ctx, framePaths(5), tl, tinyCanvas, 0.5, nil)
		require.NoError(t, err)

		out, err := Reconcile(s, AudioTrack{Path: "ep.mp3", Duration: 10.0})
		require.NoError(t, err)
		assert.Equal(t, s.Segments, out.Segments)
		assert.False(t, s.HasAudio(), "input stream must not be mutated")
	})

	t.Run("near-equal stream is snapped to the audio", func(t *testing.T) {
		tl := mustPlan(t, 4, 0, 2.0, true)
		s, err := Assemble(ctx, framePaths(4), tl, tinyCanvas, 0.5, nil)
		require.NoError(t, err)

		for _, audio := range []float64{8.0004, 7.9996} {
			out, err := Reconcile(s, AudioTrack{Path: "ep.mp3", Duration: audio})
			require.NoError(t, err)
			assert.InDelta(t, audio, out.Duration(), 1e-12, "audio=%v", audio)
			assert.Equal(t, []int{0, 1, 2, 3}, indexes(out))
			assert.Equal(t, s.Segments[:3], out.Segments[:3], "only the last segment changes")
		}
		assert.InDelta(t, 8.0, s.Duration(), 1e-12, "input stream must not be mutated")
	})

	t.Run("always matches audio duration", func(t *testing.T) {
		for _, video := range []float64{0.7, 3, 9.99, 10, 10.01, 25} {
			for _, audio := range []float64{0.5, 4.2, 10, 33.3} {
				tl := mustPlan(t, 3, 0, video/3, true)
				s, err := Assemble(ctx, framePaths(3), tl, tinyCanvas, 0.2, nil)
				require.NoError(t, err)

				out, err := Reconcile(s, AudioTrack{Duration: audio})
				require.NoError(t, err)
				assert.InDelta(t, audio, out.Duration(), 1e-9, "video=%v audio=%v", video, audio)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tl := mustPlan(t, 1, 1, 0, false)
		s, err := Assemble(ctx, framePaths(1), tl, tinyCanvas, 0, nil)
		require.NoError(t, err)

		_, err = Reconcile(s, AudioTrack{Duration: 0})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)

		_, err = Reconcile(&Stream{Canvas: tinyCanvas}, AudioTrack{Duration: 3})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func indexes(s *Stream) []int {
	out := make([]int, len(s.Segments))
	for i, seg := range s.Segments {
		out[i] = seg.Index
	}
	return out
}

// fakeLoader returns a one-pixel frame whose channels all equal the value
// registered for the path, and counts loads.
type fakeLoader struct {
	values map[string]byte
	loads  map[string]int
}

func newFakeLoader(values map[string]byte) *fakeLoader {
	return &fakeLoader{values: values, loads: map[string]int{}}
}

func (f *fakeLoader) load(path string, c frame.Canvas) ([]byte, error) {
	v, ok := f.values[path]
	if !ok {
		return nil, fmt.Errorf("frame %s: %w", path, apperr.ErrMediaRead)
	}
	f.loads[path]++
	return bytes.Repeat([]byte{v}, c.FrameBytes()), nil
}

func TestWriteFrames(t *testing.T) {
	ctx := context.Background()
	paths := framePaths(2)
	loader := newFakeLoader(map[string]byte{paths[0]: 0, paths[1]: 200})

	tl := mustPlan(t, 2, 0, 1.0, true)
	s, err := Assemble(ctx, paths, tl, tinyCanvas, 0.5, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	var progress []int
	err = s.writeFrames(ctx, &buf, 4, loader.load, func(done, total int) {
		assert.Equal(t, 8, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)

	require.Equal(t, 8*tinyCanvas.FrameBytes(), buf.Len())
	px := buf.Bytes()

	// Frames 0-3 show the first image, frame 4 starts the crossfade at alpha 0,
	// frame 5 is halfway, frames 6-7 show the second image.
	assert.Equal(t, []byte{0, 0, 0, 0}, []byte{px[0], px[3], px[6], px[9]})
	assert.Equal(t, byte(0), px[12])
	assert.Greater(t, px[15], byte(0))
	assert.Less(t, px[15], byte(200))
	assert.InDelta(t, 100, int(px[15]), 1)
	assert.Equal(t, []byte{200, 200}, []byte{px[18], px[21]})

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, progress)
	assert.Equal(t, 1, loader.loads[paths[0]], "decoded frames are cached")
	assert.Equal(t, 1, loader.loads[paths[1]])
}

func TestWriteFrames_HardCut(t *testing.T) {
	paths := framePaths(2)
	loader := newFakeLoader(map[string]byte{paths[0]: 10, paths[1]: 90})
	tl := mustPlan(t, 2, 0, 0.5, true)
	s, err := Assemble(context.Background(), paths, tl, tinyCanvas, 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.writeFrames(context.Background(), &buf, 4, loader.load, nil))

	px := buf.Bytes()
	require.Len(t, px, 4*3)
	assert.Equal(t, []byte{10, 10, 90, 90}, []byte{px[0], px[3], px[6], px[9]})
}

func TestWriteFrames_FrameCountMatchesDuration(t *testing.T) {
	tl := mustPlan(t, 5, 10, 0, false)
	s, err := Assemble(context.Background(), framePaths(5), tl, tinyCanvas, 0.5, nil)
	require.NoError(t, err)
	assert.Equal(t, 240, s.FrameCount(24))

	out, err := Reconcile(s, AudioTrack{Duration: 7.3})
	require.NoError(t, err)
	assert.Equal(t, 175, out.FrameCount(24))
	assert.Zero(t, out.FrameCount(0))
}

func TestWriteFrames_Cancelled(t *testing.T) {
	paths := framePaths(1)
	loader := newFakeLoader(map[string]byte{paths[0]: 1})
	tl := mustPlan(t, 1, 0, 1, true)
	s, err := Assemble(context.Background(), paths, tl, tinyCanvas, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.writeFrames(ctx, &bytes.Buffer{}, 24, loader.load, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFrames_LoadError(t *testing.T) {
	tl := mustPlan(t, 1, 0, 1, true)
	s, err := Assemble(context.Background(), []string{"missing.jpg"}, tl, tinyCanvas, 0, nil)
	require.NoError(t, err)

	err = s.writeFrames(context.Background(), &bytes.Buffer{}, 24, newFakeLoader(nil).load, nil)
	assert.ErrorIs(t, err, apperr.ErrMediaRead)
}
