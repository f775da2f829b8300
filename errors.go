package ftp

import (
	"errors"
	"fmt"
)

// ProtocolError reports a reply whose code was not the one the command
// requires, with the full command/response context.
type ProtocolError struct {
	// Command is the command that was sent (e.g., "STOR")
	Command string

	// Response is the text of the reply (e.g., "No such file or directory.")
	Response string

	// Code is the numeric reply code (e.g., 550)
	Code int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s: server replied %d %s", e.Command, e.Code, e.Response)
}

// Is4xx reports a transient refusal such as 425 or 450.
func (e *ProtocolError) Is4xx() bool { return e.Code/100 == 4 }

// Is5xx reports a refusal that repeating the command will not change.
func (e *ProtocolError) Is5xx() bool { return e.Code/100 == 5 }

// ErrExhaustedRetries is matched by every RetryError.
var ErrExhaustedRetries = errors.New("ftp: retries exhausted")

// RetryError is returned by a retried operation once its attempt budget is
// spent. It unwraps to the error of the last attempt.
type RetryError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("ftp: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

func (e *RetryError) Is(target error) bool {
	return target == ErrExhaustedRetries
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it (unwrapped)
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
