package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeAlreadyResolved Code = "ALREADY_RESOLVED"
	CodeExpired         Code = "EXPIRED"
	CodeNotAMember      Code = "NOT_A_MEMBER"
	CodeAlreadyDecided  Code = "ALREADY_DECIDED"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInvalidTarget   Code = "INVALID_TARGET"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// Error is a structured failure reported to the initiating caller.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrAlreadyResolved = &Error{Code: CodeAlreadyResolved, Message: "invitation already resolved"}
	ErrExpired         = &Error{Code: CodeExpired, Message: "invitation expired"}
	ErrNotAMember      = &Error{Code: CodeNotAMember, Message: "not a member of the room"}
	ErrAlreadyDecided  = &Error{Code: CodeAlreadyDecided, Message: "value already decided"}
	ErrRateLimited     = &Error{Code: CodeRateLimited, Message: "too many invitations"}
	ErrInvalidTarget   = &Error{Code: CodeInvalidTarget, Message: "invalid invitation target"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "unauthenticated"}

	ErrUsernameTooLong = &Error{Code: CodeInvalidArgument, Message: "username too long"}
	ErrUsernameEmpty   = &Error{Code: CodeInvalidArgument, Message: "username empty"}
)
