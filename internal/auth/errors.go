package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidUsername    = errors.New("auth: invalid username")
	ErrBadPassword        = errors.New("auth: password does not meet requirements")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token has expired")
	ErrTokenNotFound      = errors.New("auth: token not found")
)
