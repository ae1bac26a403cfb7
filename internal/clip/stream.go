// Package clip assembles composed frames into a timed video stream with
// crossfade transitions, and reconciles that stream against an audio track.
package clip

import (
	"github.com/maauso/slideshow/internal/frame"
)

// Epsilon is the tolerance, in seconds, under which two durations are equal.
const Epsilon = 1e-3

// Segment is one slide on the stream: a composed frame shown for Display
// seconds, cross-dissolving in from the previous segment during its first
// TransitionIn seconds.
type Segment struct {
	// Index is the position of the source image in the image set.
	Index int
	// FramePath is the composed frame on disk.
	FramePath string
	// Display is how long the segment is on screen, transition included.
	Display float64
	// TransitionIn is the crossfade length; 0 means a hard cut.
	TransitionIn float64
}

// AudioTrack is an audio file and its probed duration in seconds.
type AudioTrack struct {
	Path     string
	Duration float64
}

// Stream is an ordered sequence of segments on a fixed canvas, optionally
// bound to an audio track.
type Stream struct {
	Canvas   frame.Canvas
	Segments []Segment
	Audio    *AudioTrack
}

// Duration returns the presented length of the stream in seconds.
// Transitions overlap within segments and never add time.
func (s *Stream) Duration() float64 {
	var total float64
	for _, seg := range s.Segments {
		total += seg.Display
	}
	return total
}

// HasAudio reports whether an audio track is bound.
func (s *Stream) HasAudio() bool {
	return s.Audio != nil
}

// Truncate returns a copy of the stream cut to d seconds from the start.
// The segment crossing d is shortened; later segments are dropped.
func (s *Stream) Truncate(d float64) *Stream {
	out := s.empty()
	var elapsed float64
	for _, seg := range s.Segments {
		remaining := d - elapsed
		if remaining <= 1e-9 {
			break
		}
		if seg.Display > remaining {
			seg.Display = remaining
			seg.TransitionIn = min(seg.TransitionIn, seg.Display)
		}
		out.Segments = append(out.Segments, seg)
		elapsed += seg.Display
	}
	return out
}

// Loop returns a copy of the stream repeated n times back to back.
// The whole sequence repeats; each repetition starts with a hard cut.
func (s *Stream) Loop(n int) *Stream {
	out := s.empty()
	if n < 1 {
		n = 1
	}
	out.Segments = make([]Segment, 0, len(s.Segments)*n)
	for i := 0; i < n; i++ {
		out.Segments = append(out.Segments, s.Segments...)
	}
	return out
}

// Clone returns a copy of the stream that shares no segment storage.
func (s *Stream) Clone() *Stream {
	out := s.empty()
	out.Segments = append(out.Segments, s.Segments...)
	return out
}

func (s *Stream) empty() *Stream {
	out := &Stream{Canvas: s.Canvas}
	if s.Audio != nil {
		track := *s.Audio
		out.Audio = &track
	}
	return out
}
