package orchestrator

import (
	"errors"
	"fmt"
)

// ErrRunInFlight is returned when a run is triggered on a project that
// already has one running. The trigger is rejected before any state changes.
var ErrRunInFlight = errors.New("a run is already in flight for this project")

// ValidationError rejects a trigger before the run starts; nothing has been
// persisted when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
