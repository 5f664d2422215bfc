package backup

import "fmt"

// ValidationError indicates malformed input: empty or unknown module
// selections, bad options. Surfaced to callers as a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError indicates a referenced backup or restore operation does not
// exist. Surfaced as a 404.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// InvalidStateError indicates an operation attempted against a record not in
// the required status, e.g. restoring a backup that never completed.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

// IntegrityError indicates a checksum mismatch between the stored artifact
// and the checksum captured at backup time.
type IntegrityError struct {
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: checksum mismatch (expected %s, got %s)", e.Expected, e.Actual)
}

// InfrastructureError wraps failures of the dump, transform, or remote
// storage machinery. The full chain is logged server-side; only Summary
// reaches users.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Summary is the short user-facing message.
func (e *InfrastructureError) Summary() string {
	return fmt.Sprintf("%s failed", e.Op)
}
