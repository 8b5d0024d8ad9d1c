// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
)

const (
	MaxUsernameLen = 36
)

// Identity is the stable username of an account. It is supplied by the
// authentication collaborator and never created here.
type Identity string

// ConnID identifies one live transport session.
type ConnID string

// NewIdentity trims and validates a username.
func NewIdentity(username string) (Identity, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return Identity(username), nil
}

func (i Identity) String() string { return string(i) }
