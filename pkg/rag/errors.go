package rag

import (
	"errors"

	"github.com/Dinesh0401/RAG-Chatbot/pkg/store"
)

var (
	// ErrValidation reports bad caller input. Never retried, surfaced as a
	// client error at the boundary.
	ErrValidation = errors.New("invalid input")

	// ErrGeneration reports that answer generation failed after all attempts.
	ErrGeneration = errors.New("answer generation failed")

	// ErrUnavailable reports calls against a core that failed to initialize
	// at startup.
	ErrUnavailable = errors.New("rag service unavailable")
)

// IsInfraErr reports whether err belongs to the infrastructure failure
// family: index write, retrieval or generation. The boundary logs these with
// full detail and answers clients with a generic message.
func IsInfraErr(err error) bool {
	return errors.Is(err, store.ErrWrite) ||
		errors.Is(err, store.ErrRetrieval) ||
		errors.Is(err, ErrGeneration)
}
