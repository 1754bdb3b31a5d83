package securetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Construction errors. They indicate misuse by the caller and are only
// returned from minting paths.
var (
	ErrEmptySignatureArgs = errors.New("securetoken: no signature material supplied")
	ErrNewlineInPayload   = errors.New("securetoken: signature component contains a newline")
	ErrNoPassword         = errors.New("securetoken: user has never set a password")
	ErrUnknownVariant     = errors.New("securetoken: unknown token variant")
	ErrNoSecret           = errors.New("securetoken: signing secret is empty")
)

// Sign returns the hex HMAC-SHA256 over userID, extra and timestamp joined by
// newlines.
func Sign(secret []byte, userID string, extra []string, timestamp string) (string, error) {
	if len(extra) == 0 {
		return "", ErrEmptySignatureArgs
	}
	if len(secret) == 0 {
		return "", ErrNoSecret
	}

	parts := make([]string, 0, len(extra)+2)
	parts = append(parts, userID)
	parts = append(parts, extra...)
	parts = append(parts, timestamp)
	for _, p := range parts {
		if strings.Contains(p, "\n") {
			return "", ErrNewlineInPayload
		}
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// signaturesEqual compares two hex signatures in constant time.
func signaturesEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
