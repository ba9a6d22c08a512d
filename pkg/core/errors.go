package core

import (
	"fmt"
)

// Error is the canonical error type for the SDK.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrAuthentication means no usable credentials were supplied.
	ErrAuthentication ErrorType = "authentication_error"
	// ErrTokenExchange means the conversation token could not be obtained.
	ErrTokenExchange ErrorType = "token_exchange_error"
	// ErrConnectionSetup means session bring-up failed after token acquisition.
	ErrConnectionSetup ErrorType = "connection_setup_error"
	// ErrMessageDelivery means an outbound data publish failed.
	ErrMessageDelivery ErrorType = "message_delivery_error"
	// ErrDeviceSwitch means an input or output device change failed.
	ErrDeviceSwitch ErrorType = "device_switch_error"
	// ErrMalformedPayload means inbound data could not be decoded or validated.
	ErrMalformedPayload ErrorType = "malformed_payload_error"
	// ErrCaptureSetup means the audio capture pipeline could not be built.
	ErrCaptureSetup ErrorType = "capture_setup_error"
)

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewTokenExchangeError creates a token exchange error.
func NewTokenExchangeError(message string, cause error) *Error {
	return &Error{Type: ErrTokenExchange, Message: message, Cause: cause}
}

// NewConnectionSetupError creates a connection setup error.
func NewConnectionSetupError(message string, cause error) *Error {
	return &Error{Type: ErrConnectionSetup, Message: message, Cause: cause}
}

// NewMessageDeliveryError creates a message delivery error.
func NewMessageDeliveryError(message string, cause error) *Error {
	return &Error{Type: ErrMessageDelivery, Message: message, Cause: cause}
}

// NewDeviceSwitchError creates a device switch error.
func NewDeviceSwitchError(message string, cause error) *Error {
	return &Error{Type: ErrDeviceSwitch, Message: message, Cause: cause}
}

// NewMalformedPayloadError creates a malformed payload error.
func NewMalformedPayloadError(message string, cause error) *Error {
	return &Error{Type: ErrMalformedPayload, Message: message, Cause: cause}
}

// NewCaptureSetupError creates a capture setup error.
func NewCaptureSetupError(message string, cause error) *Error {
	return &Error{Type: ErrCaptureSetup, Message: message, Cause: cause}
}

// IsFatal reports whether the error category aborts session creation.
// Steady-state categories are logged and reported to the debug sink
// instead of failing calls.
func (e *Error) IsFatal() bool {
	switch e.Type {
	case ErrAuthentication, ErrTokenExchange, ErrConnectionSetup:
		return true
	default:
		return false
	}
}
