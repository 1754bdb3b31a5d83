package domain

import "time"

// User is the subject of authentication. CredentialVersion is regenerated on
// every password change and is empty until a password has been set.
type User struct {
	ID                string
	Email             string
	CredentialVersion string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether a password has ever been set for the user.
func (u *User) HasPassword() bool {
	return u != nil && u.CredentialVersion != ""
}
