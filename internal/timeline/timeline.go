// Package timeline plans how long each slide is shown.
package timeline

import (
	"fmt"
	"math"

	"github.com/maauso/slideshow/internal/apperr"
)

// Mode selects where the total duration comes from.
type Mode string

const (
	// ModeTimed derives the total duration from the audio track.
	ModeTimed Mode = "timed"
	// ModeSilent derives the total duration from a fixed per-image duration.
	ModeSilent Mode = "silent"
)

// Timeline holds the planned display durations in seconds.
type Timeline struct {
	Mode       Mode
	ImageCount int
	PerImage   float64
	Total      float64
}

// Plan computes the timeline for imageCount images.
// In silent mode fixedImageDuration is used per image; otherwise
// audioDuration is split evenly across the images.
func Plan(imageCount int, audioDuration, fixedImageDuration float64, silent bool) (Timeline, error) {
	if imageCount <= 0 {
		return Timeline{}, fmt.Errorf("image count %d: %w", imageCount, apperr.ErrInvalidInput)
	}

	if silent {
		if !positive(fixedImageDuration) {
			return Timeline{}, fmt.Errorf("image duration %v must be positive: %w", fixedImageDuration, apperr.ErrInvalidInput)
		}
		return Timeline{
			Mode:       ModeSilent,
			ImageCount: imageCount,
			PerImage:   fixedImageDuration,
			Total:      fixedImageDuration * float64(imageCount),
		}, nil
	}

	if !positive(audioDuration) {
		return Timeline{}, fmt.Errorf("audio duration %v must be positive: %w", audioDuration, apperr.ErrInvalidInput)
	}
	return Timeline{
		Mode:       ModeTimed,
		ImageCount: imageCount,
		PerImage:   audioDuration / float64(imageCount),
		Total:      audioDuration,
	}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
