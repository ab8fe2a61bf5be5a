package auth

import "errors"

// Common authentication errors.
var (
	// ErrInvalidToken indicates the token is malformed, has a bad
	// signature, or otherwise failed validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token was valid but has expired.
	ErrExpiredToken = errors.New("token expired")

	// ErrTokenNotYetValid indicates the token's NotBefore claim is in the
	// future.
	ErrTokenNotYetValid = errors.New("token not yet valid")
)
