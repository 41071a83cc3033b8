package engine

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can classify them
// with errors.Is.
var (
	// ErrConfig reports missing or unreadable model, token or lexicon files.
	ErrConfig = errors.New("configuration error")
	// ErrTokenization reports input the phonemizer or symbol table rejected.
	ErrTokenization = errors.New("tokenization error")
	// ErrInference reports a failed engine call or malformed output tensors.
	ErrInference = errors.New("inference error")
	// ErrValidation reports a request rejected before any engine call.
	ErrValidation = errors.New("validation error")
)

// Kind returns a short label for the error kind of err, or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTokenization):
		return "tokenization"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "unknown"
	}
}
