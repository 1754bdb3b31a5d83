// Package securetoken mints and validates signed, stateless bearer tokens.
//
// A token value is base64(user_id + "\n" + timestamp + "\n" + signature) where
// signature is the hex HMAC-SHA256 of the user id, the variant's signature
// material and the timestamp, joined by newlines. Nothing is stored server
// side: a token is invalidated when the material it was signed over changes
// (a password change rotates the credential version, minting a new token of a
// nonce-based variant overwrites the nonce).
package securetoken

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token is the in-memory form of a secure token. It is never persisted.
type Token struct {
	Variant   Variant
	UserID    string
	Timestamp string
	Signature string
}

// Value serializes the token into its transportable string.
func (t Token) Value() string {
	raw := t.UserID + "\n" + t.Timestamp + "\n" + t.Signature
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// IssuedAt parses the token timestamp.
func (t Token) IssuedAt() (time.Time, error) {
	return ParseTimestamp(t.Timestamp)
}

// parseValue decodes a token value. The bool is false for any malformed input.
func parseValue(variant Variant, value string) (Token, bool) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return Token{}, false
	}
	parts := strings.Split(string(decoded), "\n")
	if len(parts) != 3 {
		return Token{}, false
	}
	return Token{
		Variant:   variant,
		UserID:    parts[0],
		Timestamp: parts[1],
		Signature: parts[2],
	}, true
}

// FormatTimestamp encodes t (in UTC) as YYYYDDDHHMMSS.ffffff where DDD is the
// day of the year.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%03d%02d%02d%02d.%06d",
		t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Microsecond))
}

// ParseTimestamp decodes a timestamp produced by FormatTimestamp. The
// fractional part is read as an integer count of microseconds, so both padded
// and unpadded forms are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	datePart, micros, ok := strings.Cut(s, ".")
	if !ok || len(datePart) != 13 || len(micros) == 0 || len(micros) > 6 {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}
	if !allDigits(datePart) || !allDigits(micros) {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}

	year, _ := strconv.Atoi(datePart[0:4])
	yday, _ := strconv.Atoi(datePart[4:7])
	hour, _ := strconv.Atoi(datePart[7:9])
	minute, _ := strconv.Atoi(datePart[9:11])
	second, _ := strconv.Atoi(datePart[11:13])
	usec, _ := strconv.Atoi(micros)

	if yday < 1 || yday > daysIn(year) || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("timestamp out of range %q", s)
	}

	start := time.Date(year, time.January, 1, hour, minute, second, usec*int(time.Microsecond), time.UTC)
	return start.AddDate(0, 0, yday-1), nil
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
