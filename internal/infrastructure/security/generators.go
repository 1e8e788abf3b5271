package security

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

// GenerateULID generates a new ULID string.
func GenerateULID() string {
	return ulid.Make().String()
}

// ValidULID reports whether s parses as a ULID.
func ValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// DigestCode hashes a one-time code so the plaintext never sits in session state.
func DigestCode(code string) ([]byte, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to digest code: %w", err)
	}
	return digest, nil
}

// CodeMatches compares input against a digest produced by DigestCode.
func CodeMatches(digest []byte, input string) bool {
	if len(digest) == 0 || input == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(digest, []byte(input)) == nil
}
