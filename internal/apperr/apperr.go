// Package apperr defines the error kinds shared by every stage of a render.
// Packages wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is.
package apperr

import "errors"

// Static error kinds.
var (
	// ErrNotFound is returned when an input directory or file does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmptyInput is returned when no usable images are found.
	ErrEmptyInput = errors.New("no supported image files found")
	// ErrInvalidInput is returned for bad durations, resolutions or parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMediaRead is returned when media metadata or pixels cannot be read.
	ErrMediaRead = errors.New("media read failed")
	// ErrEncoding is returned when the encoder fails.
	ErrEncoding = errors.New("encoding failed")
	// ErrVerification is returned when the output file never materializes.
	ErrVerification = errors.New("output verification failed")
	// ErrCancelled is returned when the user stopped the render. It is not a failure.
	ErrCancelled = errors.New("render cancelled")
)

// Kind is a stable, machine-readable error code.
type Kind string

const (
	KindNone         Kind = ""
	KindNotFound     Kind = "NOT_FOUND"
	KindEmptyInput   Kind = "EMPTY_INPUT"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindMediaRead    Kind = "MEDIA_READ"
	KindEncoding     Kind = "ENCODING"
	KindVerification Kind = "VERIFICATION"
	KindCancelled    Kind = "CANCELLED"
	KindInternal     Kind = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrCancelled, KindCancelled},
	{ErrNotFound, KindNotFound},
	{ErrEmptyInput, KindEmptyInput},
	{ErrInvalidInput, KindInvalidInput},
	{ErrMediaRead, KindMediaRead},
	{ErrEncoding, KindEncoding},
	{ErrVerification, KindVerification},
}

// KindOf classifies err. Unknown errors map to KindInternal, nil to KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsValidation reports whether err was raised before any rendering work.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindEmptyInput, KindInvalidInput:
		return true
	}
	return false
}

// IsCancelled reports whether err is a user-requested stop.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
