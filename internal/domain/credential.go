package domain

import "time"

// Credential is the salted password digest owned by exactly one user.
type Credential struct {
	UserID    string
	Digest    []byte
	Salt      []byte
	CreatedAt time.Time
}
