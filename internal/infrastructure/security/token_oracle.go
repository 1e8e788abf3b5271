package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cast"
)

var ErrNoUserID = errors.New("token carries no user id")

// IsExpired reports whether a bearer credential must be treated as expired.
// The payload is decoded without verifying the signature. Empty, malformed
// and exp-less tokens are expired.
func IsExpired(credential string) bool {
	return IsExpiredAt(credential, time.Now())
}

// IsExpiredAt is IsExpired against a fixed clock.
func IsExpiredAt(credential string, now time.Time) bool {
	claims, err := decodeClaims(credential)
	if err != nil {
		return true
	}
	exp, ok := claims["exp"]
	if !ok {
		return true
	}
	seconds, err := cast.ToFloat64E(exp)
	if err != nil {
		return true
	}
	return float64(now.Unix()) >= seconds
}

// UserIDFromToken extracts the numeric user id embedded in a credential.
func UserIDFromToken(credential string) (int64, error) {
	claims, err := decodeClaims(credential)
	if err != nil {
		return 0, err
	}
	for _, key := range []string{"user_id", "userId", "id", "sub"} {
		raw, ok := claims[key]
		if !ok {
			continue
		}
		if id, err := cast.ToInt64E(raw); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, ErrNoUserID
}

// ExpiresAt returns the embedded expiry, if any.
func ExpiresAt(credential string) (time.Time, bool) {
	claims, err := decodeClaims(credential)
	if err != nil {
		return time.Time{}, false
	}
	seconds, err := cast.ToInt64E(claims["exp"])
	if err != nil || seconds == 0 {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

func decodeClaims(credential string) (claims jwt.MapClaims, err error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return nil, errors.New("empty credential")
	}
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("undecodable credential: %v", r)
		}
	}()
	claims = jwt.MapClaims{}
	if _, _, err = jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueToken signs an HS256 token for userID. Used by local development
// backends and tests.
func IssueToken(userID int64, ttl time.Duration, secret string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
