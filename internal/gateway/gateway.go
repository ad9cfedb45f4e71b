// Package gateway exposes the send capability of the external WhatsApp gateway
// and classifies its failures into terminal and retryable errors.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/oggyb/wa-notifier/internal/domain/device"
)

// Client is the contract for a WhatsApp gateway implementation.
type Client interface {
	// Send delivers content to recipient through the given device session and
	// returns the provider message id.
	Send(ctx context.Context, dev *device.Device, recipient, content, mediaURL string) (providerID string, err error)

	// Health checks whether the gateway is reachable and usable.
	Health(ctx context.Context) error
}

// ErrCircuitOpen is returned when the device breaker rejected the call before it was attempted.
var ErrCircuitOpen = errors.New("gateway: circuit open for device")

// ValidationError is a terminal rejection: retrying the same request cannot succeed.
type ValidationError struct {
	StatusCode int
	Body       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gateway rejected request: status %d: %s", e.StatusCode, e.Body)
}

// TransportError covers network failures, timeouts, 5xx, 429 and device-session faults.
type TransportError struct {
	StatusCode int
	// DeviceFault marks errors caused by the session itself (401/403/410),
	// which count towards flipping the device to error.
	DeviceFault bool
	Err         error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway transport error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed send may be attempted again.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDeviceFault reports whether err points at a broken device session.
func IsDeviceFault(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.DeviceFault
}

// IsValidation reports whether err is a terminal rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// classifyStatus maps a non-2xx HTTP status to the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == 401 || status == 403 || status == 410:
		return &TransportError{StatusCode: status, DeviceFault: true, Err: errors.New(body)}
	case status == 408 || status == 429 || status >= 500:
		return &TransportError{StatusCode: status, Err: errors.New(body)}
	default:
		return &ValidationError{StatusCode: status, Body: body}
	}
}
