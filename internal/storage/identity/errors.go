package identity

import (
	"errors"
)

// Shared error constants for identity services.
var (
	errUserIDEmpty  = errors.New("user id cannot be empty")
	errEmailEmpty   = errors.New("email is required")
	errEmailInvalid = errors.New("email is invalid")
	errUserNotFound = errors.New("user not found")
	errUserExists   = errors.New("user already exists")
	errIDRequired   = errors.New("id is required")
	errSelfDelegate = errors.New("a user cannot delegate to themselves")
)

// IsNotFound reports whether err means a user, notification or subscription
// does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errUserNotFound) || errors.Is(err, errNotificationNotFound) || errors.Is(err, errPushSubNotFound)
}
