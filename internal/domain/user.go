// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxUsernameLen = 36

// DefaultUsername is shown until a connection renames itself.
const DefaultUsername = "guest"

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username string) (*User, error) {
	if err := validUsername(username); err != nil {
		return nil, err
	}
	return &User{ID: UserID(uuid.NewString()), Username: username}, nil
}

func (u *User) SetUsername(username string) error {
	if err := validUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func validUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
