package linesearch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a corpus, certificate or key file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation runs before its prerequisite setup,
	// e.g. Search before Prepare.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument indicates malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPayloadTooLarge indicates a frame exceeding the configured maximum payload size.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTLS indicates a certificate chain loading or handshake failure.
	ErrTLS = errors.New("tls error")

	// ErrIO indicates a filesystem failure while loading a corpus or persisting logs.
	ErrIO = errors.New("i/o error")
)

// PayloadTooLargeError reports the size of a rejected frame.
//
// It unwraps to ErrPayloadTooLarge.
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes, max allowed %d", e.Size, e.Max)
}

func (e *PayloadTooLargeError) Unwrap() error { return ErrPayloadTooLarge }

// Wire error codes carried in error frames.
const (
	CodeNotFound        = "not_found"
	CodeInvalidState    = "invalid_state"
	CodeInvalidArgument = "invalid_argument"
	CodePayloadTooLarge = "payload_too_large"
	CodeTLS             = "tls"
	CodeIO              = "io"
	CodeCanceled        = "canceled"
	CodeInternal        = "internal"
)

// ErrorCode maps an error onto its wire code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrPayloadTooLarge):
		return CodePayloadTooLarge
	case errors.Is(err, ErrTLS):
		return CodeTLS
	case errors.Is(err, ErrIO):
		return CodeIO
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// ioError wraps a filesystem failure so that it matches ErrIO.
func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
