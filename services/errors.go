package services

import (
	"errors"

	"gorm.io/gorm"
)

// ErrorKind is the closed set of failure categories the messaging service
// reports. Handlers map each kind to an HTTP status exactly once.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindPermissionDenied
	KindConflict
	KindValidation
)

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func PermissionDeniedError(message string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func ValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the kind of err, or 0 for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// isUniqueViolation relies on gorm's TranslateError being enabled on the
// connection, which maps driver-specific unique-constraint failures to
// gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
