package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserMissingID    = errors.New("user is missing id")
	ErrUserMissingEmail = errors.New("user is missing email")
	ErrUserMissingOrg   = errors.New("user is missing organization")
)

// User represents a person authenticated through the identity provider.
// Every user belongs to exactly one organization.
type User struct {
	UserID     string    // Identity provider subject id, primary key
	Email      string    // Unique, used as lookup key
	Name       string    // Display name
	PictureURL string    // Optional avatar URL
	OrgID      uuid.UUID // FK to organizations, immutable after creation
	OrgName    string    // Denormalized from the organization join
	CreatedAt  time.Time
}

// Validate reports the first required field that is missing.
func (u *User) Validate() error {
	switch {
	case u.UserID == "":
		return ErrUserMissingID
	case u.Email == "":
		return ErrUserMissingEmail
	case u.OrgID == uuid.Nil:
		return ErrUserMissingOrg
	}
	return nil
}

// DisplayName returns the user's name, falling back to the email address.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
