package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes. Handlers translate them into transport status codes.
const (
	CodeUnknown      = 0
	CodeValidation   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeTransient    = 503
)

// Error represents a coded error with stack trace
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message. The code of a wrapped *Error is kept.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// WrapCode wraps an error and assigns a code to it.
func WrapCode(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// Sentinel creates a coded error meant to be declared once at package level and
// matched with errors.Is. It carries no stack.
func Sentinel(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NotFound, Validation, Unauthorized, Conflict and Transient are shorthands for WithCodef.
func NotFound(format string, args ...interface{}) *Error {
	return WithCodef(CodeNotFound, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return WithCodef(CodeValidation, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return WithCodef(CodeUnauthorized, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return WithCodef(CodeConflict, format, args...)
}

func Transient(err error, format string, args ...interface{}) *Error {
	return WrapCode(err, CodeTransient, fmt.Sprintf(format, args...))
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	newErr := &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Stack:   e.Stack,
		Context: make([]KeyValue, len(e.Context), len(e.Context)+1),
	}
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return newErr
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// drop the goroutine header and the captureStack/constructor frames
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}

	return strings.TrimSpace(stack)
}

// GetCode returns the code of the first coded error in the chain.
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return CodeUnknown
		}
		if e.Code != CodeUnknown {
			return e.Code
		}
		err = e.Err
	}
	return CodeUnknown
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func IsNotFound(err error) bool     { return GetCode(err) == CodeNotFound }
func IsValidation(err error) bool   { return GetCode(err) == CodeValidation }
func IsUnauthorized(err error) bool { return GetCode(err) == CodeUnauthorized }
func IsConflict(err error) bool     { return GetCode(err) == CodeConflict }
func IsTransient(err error) bool    { return GetCode(err) == CodeTransient }

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Err != nil {
			err = e.Err
		} else {
			return err
		}
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
