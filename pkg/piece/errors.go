package piece

import "errors"

type nonRetryable struct {
	error
}

var (
	// ErrConnectionNotFound is returned by Connections when no connection
	// has the requested name
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrPauseTooLong is returned by Pause for a delay past the pause limit
	ErrPauseTooLong = errors.New(
		"the pause duration exceeds the maximum allowed",
	)
)

// NonRetryable marks an action failure that retrying cannot fix
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryable{error: err}
}

// IsRetryable reports whether an action failure may be retried. Failures are
// retryable unless marked otherwise
func IsRetryable(err error) bool {
	var nr *nonRetryable
	return !errors.As(err, &nr)
}

func (e *nonRetryable) Unwrap() error {
	return e.error
}
