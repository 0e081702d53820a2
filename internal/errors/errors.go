package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Pipeline error kinds. None of them stops the pipeline; each degrades one record or chunk.
var (
	// ErrDecodeMismatch marks a log whose primary topic is not a known swap signature.
	ErrDecodeMismatch = stderrors.New("log topic is not a known swap event")
	// ErrPriceUnresolved marks a token (or the anchor) without any USD price.
	ErrPriceUnresolved = stderrors.New("usd price unresolved")
	// ErrDegenerateSwap marks a swap without a positive leg.
	ErrDegenerateSwap = stderrors.New("swap has no positive leg")
	// ErrSelfSwap marks a swap whose legs reference the same token.
	ErrSelfSwap = stderrors.New("swap legs reference the same token")
)

type DatabaseError struct {
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource   string
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Identifier)
}

type EthereumError struct {
	Operation string
	Err       error
}

func (e *EthereumError) Error() string {
	return fmt.Sprintf("ethereum error during %s: %v", e.Operation, e.Err)
}

func (e *EthereumError) Unwrap() error { return e.Err }

type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s - %v", e.StatusCode, e.Message, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

type WebSocketError struct {
	Operation string
	Err       error
}

func (e *WebSocketError) Error() string {
	return fmt.Sprintf("WebSocket error during %s: %v", e.Operation, e.Err)
}

func (e *WebSocketError) Unwrap() error { return e.Err }

// MetadataError reports token or pair metadata that stayed unavailable after the allowed attempts.
type MetadataError struct {
	Resource string // "pair" or "token"
	Address  string
	Err      error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("%s metadata unresolved for %s: %v", e.Resource, e.Address, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// PersistenceError is one failed chunk write.
type PersistenceError struct {
	Chunk int
	Rows  int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chunk %d (%d rows) not persisted: %v", e.Chunk, e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PartialFailureError is returned once every chunk has been attempted and at least one failed.
type PartialFailureError struct {
	Total  int
	Failed []*PersistenceError
}

func (e *PartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d of %d chunks failed: %s", len(e.Failed), e.Total, strings.Join(parts, "; "))
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stderrors.As(err, &nf)
}
