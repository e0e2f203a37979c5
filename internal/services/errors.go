package services

import "fmt"

// The service layer returns typed errors; handlers map each type to an HTTP
// status at the boundary.

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// AuthError covers missing, malformed, expired, and revoked credentials.
// Messages stay deliberately vague on login paths so callers cannot probe
// which accounts exist.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// QuotaExceededError carries both sides of the failed admission check.
type QuotaExceededError struct {
	RequestedBytes int64
	RemainingBytes int64
}

func (e *QuotaExceededError) Error() string {
	if e.RemainingBytes <= 0 {
		return "Storage full. Please delete some files to free up space."
	}
	return fmt.Sprintf(
		"Not enough storage. Trying to upload %.2f MB but only %.2f MB remaining.",
		float64(e.RequestedBytes)/1024/1024,
		float64(e.RemainingBytes)/1024/1024,
	)
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// UpstreamError wraps an object-store failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }
