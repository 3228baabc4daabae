package registry

import (
	"time"

	"github.com/example/fleetrelay/internal/protocol"
)

func errValidation(format string, args ...any) error {
	return protocol.NewValidationError(format, args...)
}

func errSession(format string, args ...any) error {
	return protocol.NewSessionError(format, args...)
}

func errNotFound(format string, args ...any) error {
	return protocol.NewNotFoundError(format, args...)
}

func errUnavailable(format string, args ...any) error {
	return protocol.NewUnavailableError(format, args...)
}

func connectionReplacedPayload(reason string, now time.Time) protocol.ConnectionReplacedPayload {
	return protocol.ConnectionReplacedPayload{Message: reason, Timestamp: now}
}
