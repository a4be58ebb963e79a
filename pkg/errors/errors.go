// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")

	// Wizard errors
	ErrValidation       = errors.New("validation failed")
	ErrSessionNotFound  = errors.New("form session not found")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrSessionCompleted = errors.New("form session already submitted")
	ErrInvalidStep      = errors.New("invalid step")
	ErrInvalidField     = errors.New("invalid field")
	ErrTooManyCards     = errors.New("too many credit cards")

	// Remote store errors
	ErrDistributorNotFound = errors.New("distributor not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrCommitFailed        = errors.New("client commit failed")

	// Image upload errors
	ErrFileUploadFailed   = errors.New("file upload failed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrEmptyFile          = errors.New("file is empty")
	ErrInvalidImageSlot   = errors.New("invalid image slot")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// New mirrors the standard library constructor so callers need one import.
func New(message string) error {
	return errors.New(message)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
