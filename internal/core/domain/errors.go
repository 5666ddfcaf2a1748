package domain

import (
	"errors"
	"fmt"
)

// Backend outage kinds. Each one degrades its pipeline stage instead
// of failing the request, and maps to 503 at the HTTP boundary.
var (
	ErrIndexUnavailable = errors.New("search index unavailable")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrGraphUnavailable = errors.New("graph store unavailable")
	ErrTemporary        = errors.New("temporary failure")
)

// ErrGenerationFailed marks one exhausted tier of the cypher chain.
// The chain advances past it; only a fully exhausted chain surfaces in
// the result, as kg_source=none rather than an error.
var ErrGenerationFailed = errors.New("query generation failed")

// Caller-visible request errors.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDrugNotFound     = errors.New("drug not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
