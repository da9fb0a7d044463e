package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess            Code = 0
	CodeInternal           Code = 1
	CodeUsage              Code = 2
	CodeSigner             Code = 10
	CodeUnknownNetwork     Code = 20
	CodeConfig             Code = 21
	CodeDeploymentReverted Code = 22
	CodeNetwork            Code = 23
	CodePartialDeployment  Code = 24
	CodeTimeout            Code = 25
	CodeVerification       Code = 26
	CodeBlocked            Code = 27
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// UnknownNetwork reports a network id with no registered profile.
func UnknownNetwork(networkID int64) *Error {
	return &Error{Code: CodeUnknownNetwork, Message: fmt.Sprintf("unknown network: no profile registered for network id %d", networkID)}
}

// Config reports a configuration value that failed validation. field names
// the offending setting so operators do not have to re-derive it.
func Config(field, reason string) *Error {
	msg := reason
	if field != "" {
		msg = fmt.Sprintf("invalid %s: %s", field, reason)
	}
	return &Error{Code: CodeConfig, Message: msg, Field: field}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether err carries a typed error with the given code.
func HasCode(err error, code Code) bool {
	typed, ok := As(err)
	return ok && typed.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
