// Package dbinfra declares the Acorn Pups database tier and publishes the identity of every
// provisioned table so independently deployed stacks can discover it.
package dbinfra

import (
	"errors"
	"fmt"
)

// Error is a deployment error with a stable code and the subject (environment tag, entity,
// parameter path) needed to reproduce it.
type Error struct {
	Code    string
	Message string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessageForCode(e.Code)
	}
	switch {
	case e.Subject != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s %q: %v", e.Code, msg, e.Subject, e.Err)
	case e.Subject != "":
		return fmt.Sprintf("%s: %s %q", e.Code, msg, e.Subject)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error without a cause.
func NewError(code, subject, message string) *Error {
	return &Error{Code: code, Subject: subject, Message: message}
}

// WrapError builds an Error around a provider or validation cause. The cause is kept verbatim.
func WrapError(code, subject string, err error) *Error {
	return &Error{Code: code, Subject: subject, Err: err}
}

// CodeOf returns the code of the first Error in err's chain, or "" when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its tree, including errors
// combined with errors.Join.
func IsCode(err error, code string) bool {
	return errors.Is(err, codeMatch(code))
}

type codeMatch string

func (c codeMatch) Error() string { return string(c) }

// Is lets errors.Is match an Error against a bare code.
func (e *Error) Is(target error) bool {
	c, ok := target.(codeMatch)
	return ok && e.Code == string(c)
}

// Process exit codes used by the binaries.
const (
	ExitOK     = 0
	ExitConfig = 1
	ExitFailed = 2
)

// ExitCode maps err to a process exit code: ExitConfig for configuration and environment
// errors, ExitFailed for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsCode(err, ErrorCodeInvalidConfig), IsCode(err, ErrorCodeInvalidEnvironment):
		return ExitConfig
	default:
		return ExitFailed
	}
}
