package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a key is missing.
	RedisNotFoundMessage = "redis key not found"
	// ToolErrorMessage describes a failed tool invocation.
	ToolErrorMessage = "tool execution failed"
	// ToolUnavailableMessage describes a tool that could not be initialised.
	ToolUnavailableMessage = "tool is not available"
	// LLMErrorMessage describes a failed language model call.
	LLMErrorMessage = "language model request failed"
	// EmptyMessageMessage is returned when the user sends nothing.
	EmptyMessageMessage = "No message provided"
)

// ErrEmptyMessage is the sentinel for blank user input.
var ErrEmptyMessage = errors.New("empty message")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// WrapTool marks an error raised while a tool was executing.
func WrapTool(tool string, err error) error {
	if err == nil {
		return nil
	}
	return New(fmt.Errorf("%s: %w", tool, err), http.StatusBadGateway, ToolErrorMessage)
}

// Unavailable marks a tool whose construction failed.
func Unavailable(tool, reason string) error {
	return New(fmt.Errorf("%s: %s", tool, reason), http.StatusServiceUnavailable, ToolUnavailableMessage)
}

// WrapLLM marks an error returned by the chat model.
func WrapLLM(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, LLMErrorMessage)
}

// StatusOf maps any error to an HTTP status and a message that is safe to show.
func StatusOf(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	return http.StatusInternalServerError, SystemErrorMessage
}
