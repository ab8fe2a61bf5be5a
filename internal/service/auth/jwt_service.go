// Package auth provides token issuance and verification for the admin
// API. There is a single operator principal; tokens carry the subject
// "admin" and are checked against a shared HMAC signing key.
package auth

import (
	"context"
	"time"
)

// Claims holds the validated contents of an admin token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// JWTService creates and validates admin tokens.
type JWTService interface {
	// GenerateToken creates a signed token for the admin principal.
	GenerateToken(ctx context.Context) (string, error)

	// ValidateToken verifies a token and returns its claims.
	// Returns ErrExpiredToken or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}
