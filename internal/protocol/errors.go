package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol is the sentinel every ProtocolError matches with errors.Is.
var ErrProtocol = errors.New("protocol: desync")

// TransportError reports a link send/receive/open failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: %s failed", e.Op)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError for op. A nil err stays nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// ProtocolError reports chunk sequencing/flag or frame header mismatches.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// Desync builds a ProtocolError. err may carry a more specific sentinel.
func Desync(err error, format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// StatusError is a non-OK status returned by the device.
type StatusError struct {
	Code uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device: response status %d (%s)", e.Code, StatusText(e.Code))
}

// Status codes reported in byte 1 of every response.
const (
	StatusOK          uint8 = 0
	StatusUnknownCmd  uint8 = 1
	StatusOutOfBounds uint8 = 2
)

func StatusText(code uint8) string {
	switch code {
	case StatusOK:
		return "ok"
	case StatusUnknownCmd:
		return "unknown command"
	case StatusOutOfBounds:
		return "out of bounds"
	default:
		return "unknown status"
	}
}

// IsPermanent reports whether err is a device status that reconnecting cannot fix.
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == StatusOutOfBounds || se.Code == StatusUnknownCmd
}

// Kind names the error family of err for logs and metric labels.
func Kind(err error) string {
	var (
		te *TransportError
		se *StatusError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &te):
		return "transport"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.As(err, &se):
		return "status"
	default:
		return "other"
	}
}
