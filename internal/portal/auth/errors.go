package auth

import (
	"errors"

	"github.com/printflow/portal/supabase/client"
)

// ErrNotAuthenticated is returned by operations that need a loaded profile.
var ErrNotAuthenticated = errors.New("not authenticated")

const (
	loginFallback  = "Login failed. Please try again."
	signupFallback = "Signup failed. Please try again."
	resetFallback  = "Could not send the reset email. Please try again."

	// ReasonProfileUnavailable is published when a signed-in session has no
	// profile because the profile could not be read or created.
	ReasonProfileUnavailable = "We couldn't load your profile. Please try again."
)

// Error is an identity service failure with a message safe to show to the
// user.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError keeps the service's own message when it sent one.
func newError(op, fallback string, err error) *Error {
	msg := client.Message(err)
	if msg == "" {
		msg = fallback
	}
	return &Error{Op: op, Message: msg, Err: err}
}
