package await

import (
	"errors"
	"fmt"
)

// ErrInvalidState is wrapped by errors returned from operations that
// would decide an already-decided Future, such as calling SetResult
// twice or reading the result of a pending Future.
var ErrInvalidState = errors.New("await: invalid state")

// CancelledError is the control-flow signal delivered into a
// computation when its task is cancelled. It is not a defect: a body
// may catch it, run cleanup and either re-raise it or suppress it by
// returning normally.
type CancelledError struct {
	msg string
}

// NewCancelled returns a CancelledError carrying msg. An empty msg
// produces the default message.
func NewCancelled(msg string) *CancelledError {
	return &CancelledError{msg: msg}
}

func (e *CancelledError) Error() string {
	if e.msg == "" {
		return "await: cancelled"
	}
	return "await: cancelled: " + e.msg
}

// Msg returns the cancel message, if any, passed to Cancel.
func (e *CancelledError) Msg() string { return e.msg }

// IsCancelled reports whether err is, or wraps, a CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

func cancelMsgOf(err error) string {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return ce.msg
	}
	return ""
}

// TimeoutError reports that an externally-imposed deadline expired.
// It is distinct from cancellation: WaitFor raises it to its caller
// after the inner task's cancellation has fully landed.
type TimeoutError struct {
	cause error
}

func (e *TimeoutError) Error() string {
	if e.cause == nil {
		return "await: deadline exceeded"
	}
	return fmt.Sprintf("await: deadline exceeded: %v", e.cause)
}

// Unwrap returns the cancellation that the timeout supersedes, if
// any.
func (e *TimeoutError) Unwrap() error { return e.cause }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
