package repositories

// CounterErrorCode enumerates failure reasons for sequence counters.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied a bad counter name.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorExhausted indicates the counter reached its configured ceiling.
	CounterErrorExhausted CounterErrorCode = "counter_exhausted"
)

// CounterError carries a machine readable code alongside the failure message
// so callers can branch on exhaustion without string matching.
type CounterError struct {
	Code    CounterErrorCode
	Message string
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, message string) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message}
}
