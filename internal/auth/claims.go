package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the claims of a hub session token. The subject is the
// username and the JWT ID is the TokenInfo.ID.
type SessionClaims struct {
	jwt.RegisteredClaims
	Device string `json:"dev,omitempty"`
}

// IssueToken signs a new session token for username.
func IssueToken(username, device string, secret []byte, ttl time.Duration) (string, *SessionClaims, error) {
	now := time.Now().UTC().Truncate(time.Second)
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Device: device,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing session token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken checks the signature and expiry of a session token.
func ParseToken(token string, secret []byte) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrTokenInvalid)
	}
	return claims, nil
}
