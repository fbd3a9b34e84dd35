// Package identity normalizes and hashes user-identifying fields for the
// advanced-matching contract of the ad platform. Every event builder in the
// application goes through these helpers so the hashing rule cannot drift
// between PageView, InitiateCheckout and Purchase call sites.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeAndHash trims, lowercases and SHA-256 hashes a value, returning
// lowercase hex. Empty input yields the empty string.
func NormalizeAndHash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizePhone strips everything except digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashPhone normalizes a phone number and hashes the digits. Returns the
// empty string when no digits remain.
func HashPhone(phone string) string {
	return NormalizeAndHash(NormalizePhone(phone))
}

// SplitName splits a full name into first name and the remaining tokens
// joined by a single space.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	first = parts[0]
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}
