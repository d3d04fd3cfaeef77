package models

import (
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"_id" yaml:"-"`
	FirstName    string    `json:"firstName" yaml:"firstName"`
	LastName     string    `json:"lastName" yaml:"lastName"`
	Email        string    `json:"email" yaml:"email"`
	PasswordHash string    `json:"-" yaml:"passwordHash"`
	Playlists    []string  `json:"playlists" yaml:"-"`
	CreatedAt    time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt    time.Time `json:"updatedAt" yaml:"-"`
}

var (
	ErrMissingField = fmt.Errorf("missing required field")
	ErrInvalidEmail = fmt.Errorf("invalid email address")
)

func (u *User) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
		{"email", u.Email},
		{"passwordHash", u.PasswordHash},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("models.User.Validate: %w: %s", ErrMissingField, f.name)
		}
	}

	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("models.User.Validate: %w: %q", ErrInvalidEmail, u.Email)
	}

	return nil
}

// Public is the subset of a user that is safe to send to its owner.
type Public struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

func (u *User) Public() Public {
	return Public{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}
