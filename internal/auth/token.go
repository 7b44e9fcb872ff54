// Package auth issues and checks the opaque bearer tokens that identify a
// user's session.
//
// TOKENS AT REST:
// A token is 32 random bytes, base64url encoded without padding. Stores
// only ever see HashToken(token): a leaked database does not hand out
// working sessions.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// TokenBytes is the amount of randomness in a session token.
const TokenBytes = 32

// NewToken returns a fresh random session token.
func NewToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex BLAKE2b-256 digest stores key sessions by.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-sensitive and exactly one space separates it
// from the token. It returns "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) < 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
