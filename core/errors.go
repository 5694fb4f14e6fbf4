package core

import (
	"errors"
	"net/http"
)

// Validation errors. Recovered locally: a rejected add is a no-op and a
// rejected search returns no results.
var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidRequest    = errors.New("invalid request")
)

// ErrCapacity is returned when the vector index refuses an insertion.
var ErrCapacity = errors.New("vector index capacity exceeded")

// Errors from the external model capabilities. These fail the request.
var (
	ErrEmbedding     = errors.New("failed to generate embedding")
	ErrGeneration    = errors.New("failed to generate response")
	ErrPromptTooLong = errors.New("prompt exceeds context window")
)

// Persistence errors. A failed load degrades to an empty store; a failed
// save is logged.
var (
	ErrSnapshot         = errors.New("memory snapshot i/o failed")
	ErrSnapshotMismatch = errors.New("memory snapshot index and entries disagree")
)

// StatusCode maps an error from the chat pipeline to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
