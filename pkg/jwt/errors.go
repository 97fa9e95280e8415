package jwt

import "errors"

var (
	ErrInvalidToken      = errors.New("jwt: invalid token")
	ErrExpiredToken      = errors.New("jwt: token is expired")
	ErrInvalidSigningKey = errors.New("jwt: signing key must be at least 32 bytes")
	ErrSigningFailed     = errors.New("jwt: failed to sign token")
	ErrMissingToken      = errors.New("jwt: missing bearer token")
)
