package devices

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.bug.st/serial"
)

type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodePortUnavailable
	CodeInvalidConfig
	CodeMalformedLine
	CodeTransportRead
	// CodeDecode marks ill-formed bytes on the wire. DecodeLine recovers them
	// locally, so it only appears in debug log entries.
	CodeDecode
)

func (c ErrorCode) String() string {
	switch c {
	case CodePortUnavailable:
		return "PortUnavailable"
	case CodeInvalidConfig:
		return "InvalidConfig"
	case CodeMalformedLine:
		return "MalformedLine"
	case CodeTransportRead:
		return "TransportReadError"
	case CodeDecode:
		return "DecodeError"
	default:
		return "Unknown"
	}
}

// DeviceError carries the failure class of a scale operation.
type DeviceError struct {
	Code    ErrorCode
	Port    string
	Message string
	Cause   error
}

func (e *DeviceError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Port != "" {
		s += " (port " + e.Port + ")"
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *DeviceError) Unwrap() error { return e.Cause }

func newError(code ErrorCode, port, msg string) *DeviceError {
	return &DeviceError{Code: code, Port: port, Message: msg}
}

func wrapError(err error, code ErrorCode, port, format string, args ...interface{}) *DeviceError {
	return &DeviceError{Code: code, Port: port, Message: fmt.Sprintf(format, args...), Cause: err}
}

// IsCode reports whether err is, or wraps, a DeviceError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// openFailureReason classifies an open error for the operator.
func openFailureReason(err error) string {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortBusy:
			return "port busy, held by another program"
		case serial.PortNotFound:
			return "port not found"
		case serial.PermissionDenied:
			return "permission denied"
		}
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "port not found"
	case errors.Is(err, os.ErrPermission):
		return "permission denied"
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || strings.Contains(msg, "access is denied") {
		return "port busy, held by another program"
	}
	return "open failed"
}
