package frame

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp" // register decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/maauso/slideshow/internal/apperr"
)

// Compose decodes the image at path and letterboxes it onto a black canvas.
// The result is always exactly canvas-sized and fully opaque.
func Compose(path string, c Canvas) (*image.RGBA, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - path comes from the listed image set
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("open image %s: %w", path, apperr.ErrMediaRead)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w: %v", path, apperr.ErrMediaRead, err)
	}

	return Fit(img, c), nil
}

// Fit scales img to fit inside c, preserving aspect ratio, and centers it on
// a black background. Nothing is cropped.
func Fit(img image.Image, c Canvas) *image.RGBA {
	src := flatten(img)
	b := src.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), c)

	var scaled image.Image = src
	if w != b.Dx() || h != b.Dy() {
		scaled = resize.Resize(uint(w), uint(h), src, resize.Lanczos3)
	}

	dst := blank(c)
	x := (c.Width - w) / 2
	y := (c.Height - h) / 2
	draw.Draw(dst, image.Rect(x, y, x+w, y+h), scaled, scaled.Bounds().Min, draw.Src)

	// Resampling can leave partially transparent edge pixels.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// FitSize returns the scaled size of a srcW x srcH image fitted inside c.
// Wider-than-canvas images fit the width, others fit the height.
func FitSize(srcW, srcH int, c Canvas) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return c.Width, c.Height
	}
	imageAspect := float64(srcW) / float64(srcH)

	var w, h int
	if imageAspect > c.Aspect() {
		w = c.Width
		h = int(float64(c.Width) / imageAspect)
	} else {
		h = c.Height
		w = int(float64(c.Height) * imageAspect)
	}

	w = clamp(w, 1, c.Width)
	h = clamp(h, 1, c.Height)
	return w, h
}

// blank returns an opaque black canvas.
func blank(c Canvas) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return dst
}

// flatten converts img to an opaque image, dropping alpha instead of
// compositing it: color channels keep their straight (non-premultiplied) values.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-b.Min.X, y-b.Min.Y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
