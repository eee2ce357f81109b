package bilibili

import (
	"errors"
	"fmt"
)

var (
	// ErrRiskControl is the distinguished risk-control signal. Fan-out layers
	// branch on it with errors.Is; it must never be matched by message text.
	ErrRiskControl = errors.New("bilibili: risk control triggered")

	// ErrNotFound is the permanent-not-found classification (envelope code
	// -404). Rows hitting it are marked invalid instead of retried.
	ErrNotFound = errors.New("bilibili: resource not found")

	// ErrUnauthenticated covers requests that need a credential when none is
	// configured.
	ErrUnauthenticated = errors.New("bilibili: credential required")

	// ErrStreamsEmpty is raised when a playurl manifest carries no video
	// streams. The upstream does this under risk control, so it unwraps to
	// ErrRiskControl.
	ErrStreamsEmpty = fmt.Errorf("bilibili: no video streams in manifest: %w", ErrRiskControl)
)

// APIError is a non-zero code in the JSON envelope.
type APIError struct {
	Code    int64
	Message string
	Op      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili: %s: code %d: %s", e.Op, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Code == -404 {
		return ErrNotFound
	}
	// -352 and -412 are the gateway's abuse-mitigation rejections.
	if e.Code == -352 || e.Code == -412 {
		return ErrRiskControl
	}
	return nil
}

// StatusError is a non-2xx HTTP status before the envelope could be read.
type StatusError struct {
	Status int
	Op     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bilibili: %s: unexpected HTTP status %d", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Status == 412 {
		return ErrRiskControl
	}
	return nil
}
