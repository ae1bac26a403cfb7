// Package media provides the read-only queries a render starts with:
// audio duration probing and image directory enumeration.
package media

import "context"

// Prober defines the interface for reading audio metadata.
type Prober interface {
	// AudioDuration returns the duration of the audio file at path in seconds.
	// Implementations read container metadata first and fall back to decoding
	// the stream when metadata is missing or unreadable.
	AudioDuration(ctx context.Context, path string) (float64, error)
}
