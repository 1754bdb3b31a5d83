package domain

// Identity is the caller-supplied subject evaluated against bridge filters.
type Identity struct {
	ID         string
	Email      string
	Attributes map[string]any
}

// IdentityFromUser builds an Identity for an authenticated user. A nil user
// yields the anonymous identity.
func IdentityFromUser(u *User) Identity {
	if u == nil {
		return Identity{}
	}
	return Identity{ID: u.ID, Email: u.Email}
}

// Anonymous reports whether the identity carries no subject.
func (i Identity) Anonymous() bool {
	return i.ID == ""
}
