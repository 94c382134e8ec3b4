package service

import (
	"errors"
	"fmt"
)

// Error kinds for the orchestration layer. Handlers map these onto HTTP
// statuses with errors.Is; everything not a validation error is a server-side
// failure.
var (
	// ErrValidation marks missing or malformed caller input. Surfaced
	// immediately, never retried.
	ErrValidation = errors.New("validation error")

	// ErrProvider marks a rejection or failure from the speech provider.
	ErrProvider = errors.New("transcription provider error")

	// ErrGeneration marks a failed minutes generation, including chat output
	// that cannot be parsed at all.
	ErrGeneration = errors.New("minutes generation error")

	// ErrCritique marks a failed critique generation.
	ErrCritique = errors.New("critique generation error")

	// ErrUpload marks a failed transfer to the object store.
	ErrUpload = errors.New("upload error")
)

// WrapValidation builds a caller-input error handlers map to 400.
func WrapValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// WrapUpload builds an object-store failure handlers map to 500.
func WrapUpload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpload, fmt.Sprintf(format, args...))
}
