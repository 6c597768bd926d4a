package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

//
// ===========================================================
//  ENV UTILITIES
// ===========================================================
//

// EnvOrDefault returns ENV value or fallback default.
func EnvOrDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

// EnvDuration parses a Go duration ("12h", "90s") or falls back to def.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := EnvOrDefault(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// EnvInt parses an integer or falls back to def.
func EnvInt(key string, def int) int {
	v := EnvOrDefault(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvBool accepts true/1/yes (any case).
func EnvBool(key string, def bool) bool {
	switch strings.ToLower(EnvOrDefault(key, "")) {
	case "":
		return def
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

//
// ===========================================================
//  TOKENS & IDENTIFIERS
// ===========================================================
//

// minTokenLength rejects obviously truncated credentials without a lookup.
const minTokenLength = 16

// GenerateSecureToken returns a hex token of length random bytes.
func GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid token length")
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IsWellFormedToken checks a session token's shape only.
func IsWellFormedToken(token string) bool {
	return len(token) >= minTokenLength && !strings.ContainsAny(token, " \t\r\n")
}

// TokenFingerprint is a short, non-reversible label for logging a token.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

// BearerToken extracts the credential from an Authorization header.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IsValidGuestIdentifier accepts only the canonical 36-character UUID
// form printed in guest QR codes.
func IsValidGuestIdentifier(identifier string) bool {
	if len(identifier) != 36 {
		return false
	}
	_, err := uuid.Parse(identifier)
	return err == nil
}

// NormalizeGuestIdentifier trims and lower-cases an identifier so that
// scanners emitting upper-case hex still resolve.
func NormalizeGuestIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
