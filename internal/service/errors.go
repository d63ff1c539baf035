package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("Unable to login")
	ErrUnauthorized       = errors.New("Please authenticate.")
	ErrUserNotFound       = errors.New("user not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrAvatarNotFound     = errors.New("avatar not found")
)

// ValidationError reports the first input rule a request violated.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
