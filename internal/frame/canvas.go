// Package frame turns source images into fixed-size opaque RGB frames:
// aspect-preserving scale-to-fit, centered on a black canvas.
package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/slideshow/internal/apperr"
)

// Default output dimensions.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Canvas is the target output size in pixels.
type Canvas struct {
	Width  int
	Height int
}

// DefaultCanvas returns the 1920x1080 canvas.
func DefaultCanvas() Canvas {
	return Canvas{Width: DefaultWidth, Height: DefaultHeight}
}

// ParseCanvas parses a "WIDTHxHEIGHT" string such as "1280x720".
func ParseCanvas(s string) (Canvas, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Canvas{}, fmt.Errorf("resolution %q must be WIDTHxHEIGHT: %w", s, apperr.ErrInvalidInput)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Canvas{}, fmt.Errorf("bad width in %q: %w", s, apperr.ErrInvalidInput)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Canvas{}, fmt.Errorf("bad height in %q: %w", s, apperr.ErrInvalidInput)
	}
	c := Canvas{Width: w, Height: h}
	if err := c.Validate(); err != nil {
		return Canvas{}, err
	}
	return c, nil
}

// Validate checks that both dimensions are positive.
func (c Canvas) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid dimensions width=%d, height=%d: %w", c.Width, c.Height, apperr.ErrInvalidInput)
	}
	return nil
}

// Aspect returns width divided by height.
func (c Canvas) Aspect() float64 {
	return float64(c.Width) / float64(c.Height)
}

// FrameBytes is the size of one RGB24 frame on this canvas.
func (c Canvas) FrameBytes() int {
	return c.Width * c.Height * 3
}

func (c Canvas) String() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}
