package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maauso/slideshow/internal/apperr"
)

// supportedImageExts lists the image extensions a slideshow accepts.
var supportedImageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".tiff": {},
	".webp": {},
}

// supportedAudioExts lists the audio extensions known to work.
var supportedAudioExts = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".aac":  {},
	".ogg":  {},
	".flac": {},
}

// IsSupportedImage reports whether path has a supported image extension.
func IsSupportedImage(path string) bool {
	_, ok := supportedImageExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsSupportedAudio reports whether path has a known audio extension.
func IsSupportedAudio(path string) bool {
	_, ok := supportedAudioExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ListImages lists the supported image files directly inside dir, sorted by
// file name. The order is the slide order.
func ListImages(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image directory %s: %w", dir, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("stat image directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("image path %s is not a directory: %w", dir, apperr.ErrInvalidInput)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", apperr.ErrEmptyInput, dir)
	}

	sort.Strings(names)

	images := make([]string, len(names))
	for i, name := range names {
		images[i] = filepath.Join(dir, name)
	}
	return images, nil
}
