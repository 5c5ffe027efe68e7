package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResult is returned when the service reports success without an image
	ErrEmptyResult = errors.New("transport: success without processed image")

	// ErrChannelClosed is returned when sending on a closed channel
	ErrChannelClosed = errors.New("transport: channel closed")
)

// ServiceError is an application-level failure reported by the detection
// service (success:false).
type ServiceError struct {
	// StatusCode is the HTTP status code of the response
	StatusCode int

	// Message is the error string reported by the service
	Message string
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detection service error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("detection service error (HTTP %d): %s", e.StatusCode, e.Message)
}
