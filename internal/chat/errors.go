package chat

import (
	"errors"
	"fmt"
)

// Client-facing error messages.
const (
	MsgInvalidMessage  = "Invalid message data"
	MsgInvalidJoin     = "Invalid join data"
	MsgInvalidLeave    = "Invalid leave data"
	MsgSendFailed      = "Failed to send message"
	MsgInternalFailure = "Internal server error"
)

// ValidationError rejects malformed input. It is reported to the originating
// connection only and leaves all state untouched.
type ValidationError struct {
	Message string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// StorageError reports a failed append; the message was dropped.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ClientMessage maps an engine error to the text sent in an error event.
func ClientMessage(err error) string {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	var storage *StorageError
	if errors.As(err, &storage) {
		return MsgSendFailed
	}
	return MsgInternalFailure
}

func invalid(message, reason string) error {
	return &ValidationError{Message: message, Reason: reason}
}
