package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQueueFull         = errors.New("worker queue full")
	ErrRateLimited       = errors.New("rate limit exceeded")

	// Collaborator failures
	ErrService    = errors.New("analysis service failure")
	ErrCollection = errors.New("brand data collection failure")
	ErrRender     = errors.New("report render failure")
	ErrDelivery   = errors.New("report delivery failure")
)

// ValidationError reports rejected input fields. It matches ErrInvalidArgument.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string { return ErrInvalidArgument.Error() + ": " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// Has reports whether field was among the rejected ones.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}
