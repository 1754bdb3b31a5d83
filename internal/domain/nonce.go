package domain

import "time"

// Nonce purposes used as one-time signing material.
const (
	NoncePurposeTransfer      = "https_transfer"
	NoncePurposePasswordReset = "pw_reset"
)

// Nonce is a single-use random value keyed by (OwnerID, Purpose). Minting a
// new nonce for the same pair overwrites the previous value.
type Nonce struct {
	OwnerID   string
	Purpose   string
	Value     string
	CreatedAt time.Time
}
