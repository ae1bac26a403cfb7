package clip

import (
	"fmt"
	"math"

	"github.com/maauso/slideshow/internal/apperr"
)

// LoopCount returns how many whole copies of a video of the given length are
// needed to cover the audio.
func LoopCount(videoDuration, audioDuration float64) int {
	if videoDuration <= 0 {
		return 0
	}
	return int(math.Ceil(audioDuration / videoDuration))
}

// Reconcile aligns the stream to the audio track and binds the track.
// A longer stream is trimmed from the end; a shorter one is looped as a whole
// and then trimmed. A stream already within Epsilon keeps its segments; only
// the last one is stretched or trimmed so the duration equals the audio.
func Reconcile(s *Stream, track AudioTrack) (*Stream, error) {
	if track.Duration <= 0 || math.IsNaN(track.Duration) || math.IsInf(track.Duration, 0) {
		return nil, fmt.Errorf("audio duration %v: %w", track.Duration, apperr.ErrInvalidInput)
	}
	if s == nil || len(s.Segments) == 0 {
		return nil, fmt.Errorf("nothing to reconcile: %w", apperr.ErrInvalidInput)
	}

	video := s.Duration()
	if video <= 0 {
		return nil, fmt.Errorf("video duration %v: %w", video, apperr.ErrInvalidInput)
	}

	var out *Stream
	switch {
	case video > track.Duration+Epsilon:
		out = s.Truncate(track.Duration)
	case video < track.Duration-Epsilon:
		out = s.Loop(LoopCount(video, track.Duration)).Truncate(track.Duration)
	case video > track.Duration:
		out = s.Truncate(track.Duration)
	default:
		out = s.Clone()
		last := &out.Segments[len(out.Segments)-1]
		last.Display += track.Duration - video
	}

	out.Audio = &track
	return out, nil
}
