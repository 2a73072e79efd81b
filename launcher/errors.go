package launcher

import "fmt"

// LaunchError is a custom error type for source system errors
type LaunchError struct {
	Message string
}

func (e LaunchError) Error() string {
	return fmt.Sprintf("launch error: %s", e.Message)
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return LaunchError{Message: fmt.Sprintf("invalid config: %s", msg)}
}

// contractViolation panics with a LaunchError. Used for programmer errors
// (launching before a plan exists, indices outside [0, N)) that must never
// be retried or recovered from.
func contractViolation(format string, args ...any) {
	panic(LaunchError{Message: "contract violation: " + fmt.Sprintf(format, args...)})
}
