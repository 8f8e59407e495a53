package auth

import (
	"regexp"
	"time"
	"unicode"
)

// usernamePattern: 3-64 characters of letters, digits and "_.+-@".
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.+@-]{3,64}$`)

// minPasswordLength is the shortest accepted password.
const minPasswordLength = 8

// IsValidUsername checks the username format. E-mail addresses are valid usernames.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsValidPassword requires at least 8 characters including a lower-case
// letter, an upper-case letter and a digit.
func IsValidPassword(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

// User is a local account.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"createdAt"`
}

// TokenInfo describes an issued session token. The raw token is only
// ever returned once, by Authenticate.
type TokenInfo struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	DeviceName string    `json:"deviceName"`
	TokenHash  string    `json:"-"` // never serialised
	CreatedAt  time.Time `json:"creationTime"`
	ExpiresAt  time.Time `json:"expiryTime"`
}

// Identity is the result of a successful token validation.
type Identity struct {
	Username string
	TokenID  string
}
