package frame

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	"github.com/maauso/slideshow/internal/apperr"
)

// JPEGQuality is the quality used for composed frames kept on disk.
const JPEGQuality = 95

// SaveJPEG writes img to path as a JPEG.
func SaveJPEG(path string, img image.Image) error {
	f, err := os.Create(path) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode frame %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush frame %s: %w", path, err)
	}
	return f.Close()
}

// LoadRGB24 decodes a frame file and returns its packed RGB24 pixels.
// The decoded image must match the canvas exactly.
func LoadRGB24(path string, c Canvas) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 - path is inside the job workspace
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, apperr.ErrMediaRead)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w: %v", path, apperr.ErrMediaRead, err)
	}

	b := img.Bounds()
	if b.Dx() != c.Width || b.Dy() != c.Height {
		return nil, fmt.Errorf("frame %s is %dx%d, want %s: %w", path, b.Dx(), b.Dy(), c, apperr.ErrInvalidInput)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return ToRGB24(rgba), nil
}

// ToRGB24 packs an RGBA image into RGB24, dropping the alpha channel.
func ToRGB24(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i], row[i+1], row[i+2])
		}
	}
	return out
}

// Blend writes the linear cross-dissolve of from and to into dst.
// alpha 0 yields from, alpha 1 yields to. All buffers must share a length.
func Blend(dst, from, to []byte, alpha float64) {
	if alpha <= 0 {
		copy(dst, from)
		return
	}
	if alpha >= 1 {
		copy(dst, to)
		return
	}
	w := uint32(alpha*256 + 0.5)
	inv := 256 - w
	for i := range dst {
		dst[i] = uint8((uint32(from[i])*inv + uint32(to[i])*w + 128) >> 8)
	}
}
