package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	CounterErrorUnknown      CounterErrorCode = "counter_unknown"
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorExhausted indicates the counter reached its configured max value.
	CounterErrorExhausted CounterErrorCode = "counter_exhausted"
	// CounterErrorContended indicates the increment lost a race with a concurrent writer.
	CounterErrorContended CounterErrorCode = "counter_contended"
)

// CounterError wraps counter-specific failures with machine readable codes. It also satisfies
// RepositoryError so callers can treat it like any other backend failure.
type CounterError struct {
	Op      string
	Code    CounterErrorCode
	Message string
	Err     error
}

var _ RepositoryError = (*CounterError)(nil)

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *CounterError) IsNotFound() bool { return false }

func (e *CounterError) IsConflict() bool {
	return e != nil && e.Code == CounterErrorContended
}

func (e *CounterError) IsUnavailable() bool {
	return e != nil && e.Code == CounterErrorUnknown
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
