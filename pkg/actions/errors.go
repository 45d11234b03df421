package actions

import "fmt"

// RegistrationError indicates an attempt to register an identifier that
// already exists. Registration happens once at process start, so this is
// fatal at startup rather than a runtime condition.
type RegistrationError struct {
	ID string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("action %q is already registered", e.ID)
}

// NotFoundError indicates an identifier that resolves to no registered
// action. It is fatal for the single request that used it.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("action %q not found", e.ID)
}
