package entities

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnsupportedType is returned when an annotation carries a type tag the
// SDK does not know how to handle. It is a schema mismatch, not a per-item
// anomaly, so callers are expected to stop rather than skip.
var ErrUnsupportedType = errors.New("unsupported annotation type")

// PlatformError is an error reported by (or on behalf of) the platform. Code
// holds the HTTP-like status code as a string, e.g. "404".
type PlatformError struct {
	Code    string
	Message string
}

// NewPlatformError builds a PlatformError with a formatted message.
func NewPlatformError(code string, format string, args ...any) *PlatformError {
	return &PlatformError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a PlatformError with code 404.
func IsNotFound(err error) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Code == "404"
	}
	return false
}
