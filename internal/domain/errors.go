package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid command payload")
	ErrSagaNotFound        = errors.New("saga not found")
	ErrDuplicateSaga       = errors.New("saga already exists")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	ErrUnknownMessageType  = errors.New("unknown message type")
	ErrOutOfOrder          = errors.New("command ahead of saga state")
	ErrTransport           = errors.New("transport failure")
)

// HandlerError wraps an unexpected failure inside transition logic with the
// context the pump needs for its retry/dead-letter decision and for logging.
type HandlerError struct {
	MessageType string
	OrderID     string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for order %s: %v", e.MessageType, e.OrderID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
