package wpadmin

import (
	"errors"
	"fmt"
)

// ErrLoginRejected is wrapped by AuthError when the credentials were submitted
// but the dashboard never appeared.
var ErrLoginRejected = errors.New("dashboard not reached after login")

// AuthError is returned when the session could not be authenticated. It is
// run-fatal and is never retried.
type AuthError struct {
	Stage string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NavigationError is returned when the editor could not be reached, even by
// direct URL.
type NavigationError struct {
	Target string
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.Target, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// SaveError is returned when the save or publish control could not be clicked.
type SaveError struct {
	Mode string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Mode, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
