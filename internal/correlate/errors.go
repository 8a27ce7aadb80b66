package correlate

import "fmt"

// ValidationError indicates bad or missing input to the correlation engine.
// It maps to a 4xx response and is never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Message)
}

// DependencyError indicates a failed call to the contact directory or the
// call ledger. Ledger write failures are hard errors; directory lookup
// failures degrade to an unknown caller instead.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
