package errors

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrQuotaExceeded       = errors.New("provider quota exceeded")
	ErrInvalidQuotaCost    = errors.New("quota cost exceeds ceiling")
	ErrWorkerTimeout       = errors.New("worker timed out")
	ErrWorkerCrashed       = errors.New("worker crashed")
	ErrWorkerProtocol      = errors.New("worker protocol error")
	ErrTaskFailed          = errors.New("worker task failed")
	ErrUnknownAction       = errors.New("unknown worker action")
	ErrParse               = errors.New("message parse error")
	ErrLLMCallFailed       = errors.New("llm call failed")
	ErrLLMMalformed        = errors.New("llm returned malformed json")
	ErrCacheUnavailable    = errors.New("cache unavailable")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrInvalidRequest      = errors.New("invalid pipeline request")
	ErrSettingsUnavailable = errors.New("user settings unavailable")
	ErrCredentialNotFound  = errors.New("credential not found")
)

// QuotaExceededError is returned by the quota governor when a permit is denied.
type QuotaExceededError struct {
	Credential string
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s, retry after %s", e.Credential, e.RetryAfter)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// WorkerError describes a failed worker invocation. Kind is one of ErrWorkerTimeout, ErrWorkerCrashed
// or ErrWorkerProtocol.
type WorkerError struct {
	Kind     error
	TaskID   string
	Action   string
	PID      int
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *WorkerError) Error() string {
	msg := fmt.Sprintf("%s: action=%s task=%s pid=%d exit=%d", e.Kind, e.Action, e.TaskID, e.PID, e.ExitCode)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Stderr != "" {
		msg += " stderr=" + e.Stderr
	}
	return msg
}

func (e *WorkerError) Is(target error) bool {
	return target == e.Kind
}

func (e *WorkerError) Unwrap() error {
	return e.Cause
}

// TaskError is a failure reported by the task handler itself, as opposed to the process around it.
type TaskError struct {
	Message   string
	Retriable bool
}

func (e *TaskError) Error() string {
	return e.Message
}

func (e *TaskError) Is(target error) bool {
	return target == ErrTaskFailed
}

func NewTaskError(err error, retriable bool) *TaskError {
	return &TaskError{Message: err.Error(), Retriable: retriable}
}

// FetchFailedError is terminal for the whole request.
type FetchFailedError struct {
	Attempts int
	Cause    error
}

func NewFetchFailed(attempts int, cause error) *FetchFailedError {
	return &FetchFailedError{Attempts: attempts, Cause: cause}
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", ErrFetchFailed, e.Attempts, e.Cause)
}

func (e *FetchFailedError) Is(target error) bool {
	return target == ErrFetchFailed
}

func (e *FetchFailedError) Unwrap() error {
	return e.Cause
}

// IsRetriable reports whether a fetch sub-operation may be attempted again.
func IsRetriable(err error) bool {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Retriable
	}
	return errors.Is(err, ErrWorkerTimeout) || errors.Is(err, ErrWorkerCrashed) || errors.Is(err, ErrWorkerProtocol)
}

// Kind maps an error onto the machine-readable code reported to callers.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrWorkerTimeout):
		return "worker_timeout"
	case errors.Is(err, ErrWorkerCrashed):
		return "worker_crashed"
	case errors.Is(err, ErrWorkerProtocol):
		return "worker_protocol_error"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrLLMCallFailed), errors.Is(err, ErrLLMMalformed):
		return "llm_call_failed"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache_unavailable"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrSettingsUnavailable):
		return "settings_unavailable"
	case errors.Is(err, ErrTaskFailed):
		return "task_failed"
	default:
		return "internal"
	}
}
