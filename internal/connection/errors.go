package connection

import (
	"errors"
	"fmt"
)

// DefaultRejectReason is sent when a pairing request is declined without a reason.
const DefaultRejectReason = "Connection rejected by user"

// ErrConnectionRejected matches every RejectedError.
var ErrConnectionRejected = errors.New("connection rejected")

// ErrNotConnected is returned when no session is established.
var ErrNotConnected = errors.New("not connected")

// RejectedError records a declined handshake.
type RejectedError struct {
	Device string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("connection rejected: %s", e.Reason)
	}
	return fmt.Sprintf("connection rejected by %s: %s", e.Device, e.Reason)
}

// Is reports whether target is ErrConnectionRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrConnectionRejected
}
