package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/mnbuhl/atomizer/id"
)

// MaxStackTraceLength bounds the stack trace stored with an Error.
const MaxStackTraceLength = 5120

// Error is the immutable record of one failed attempt.
type Error struct {
	ID              id.ID     `json:"id"`
	JobID           id.ID     `json:"job_id"`
	Message         string    `json:"message"`
	StackTrace      string    `json:"stack_trace,omitempty"`
	ExceptionType   string    `json:"exception_type"`
	CreatedAt       time.Time `json:"created_at"`
	Attempt         int       `json:"attempt"`
	RuntimeIdentity string    `json:"runtime_identity"`
}

// NewError records err as the failure of attempt on job j.
func NewError(j *Job, err error, runtimeIdentity string, now time.Time) Error {
	return Error{
		ID:              id.NewJobErrorID(),
		JobID:           j.ID,
		Message:         err.Error(),
		StackTrace:      truncate(stackOf(err), MaxStackTraceLength),
		ExceptionType:   TypeOfError(err),
		CreatedAt:       now,
		Attempt:         j.Attempts,
		RuntimeIdentity: runtimeIdentity,
	}
}

// PanicError is returned in place of a panic raised by a handler.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// TypeOfError names the innermost error in err's chain.
func TypeOfError(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

func stackOf(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Stack
	}
	return fmt.Sprintf("%+v", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
