package game

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operation is not legal in the
	// entity's current state. Callers log and carry on.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoSpawnAreas is returned when the scheduler has nowhere to spawn.
	ErrNoSpawnAreas = errors.New("no spawn areas configured")
)

// ConfigurationError reports a setting that was out of range and has been
// replaced with a safe value.
type ConfigurationError struct {
	Field    string
	Value    interface{}
	Fallback interface{}
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s=%v %s, using %v", e.Field, e.Value, e.Reason, e.Fallback)
}

func transitionError(entity string, from fmt.Stringer, op string) error {
	return fmt.Errorf("%s %s while %s: %w", entity, op, from, ErrInvalidTransition)
}
