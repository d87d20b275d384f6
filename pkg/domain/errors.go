package domain

import "fmt"

// NotFoundError reports a referenced record that does not exist in the
// active store.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// BackendUnavailableError reports a transport or auth failure against the
// active store. It is surfaced to the caller unchanged; the router never
// falls back to the other backend.
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e BackendUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("backend %s unavailable", e.Backend)
	}
	return fmt.Sprintf("backend %s unavailable: %v", e.Backend, e.Err)
}

func (e BackendUnavailableError) Unwrap() error { return e.Err }

// KeyConflictError reports a category key collision. Always recoverable by
// choosing a different key.
type KeyConflictError struct {
	Key string
}

func (e KeyConflictError) Error() string {
	return fmt.Sprintf("category key %q already exists", e.Key)
}

// ValidationError reports malformed input caught before a write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
