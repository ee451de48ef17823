// internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a string type used for structured error reporting from browser actions.
// Using a custom type ensures that only predefined constants can be used where an
// ErrorCode is expected.
type ErrorCode string

const (
	ErrCodeNavigationError   ErrorCode = "NAVIGATION_ERROR"
	ErrCodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	// ErrCodeAskUser marks an action that needs a human decision.
	ErrCodeAskUser ErrorCode = "ASK_USER"
)

var (
	// ErrElementNotFound is returned when no lookup strategy matches a target.
	ErrElementNotFound = errors.New("no element matches target")
	// ErrSessionClosed is returned for actions on a closed session.
	ErrSessionClosed = errors.New("browser session is closed")
)

// ActionError is a failed browser action with its classification.
type ActionError struct {
	Code   ErrorCode
	Op     string
	Target string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %q: %s: %v", e.Op, e.Target, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func newActionError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &ActionError{Code: ClassifyError(err), Op: op, Target: target, Err: err}
}

// ClassifyError maps an error from a browser action to an ErrorCode.
// Classification is heuristic for errors that come straight from CDP.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ae *ActionError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	if errors.Is(err, ErrElementNotFound) {
		return ErrCodeElementNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeoutError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err"), strings.Contains(msg, "page load error"):
		return ErrCodeNavigationError
	case strings.Contains(msg, "no element found"), strings.Contains(msg, "could not find node"), strings.Contains(msg, "selector"):
		return ErrCodeElementNotFound
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return ErrCodeTimeoutError
	}
	return ErrCodeExecutionFailure
}
