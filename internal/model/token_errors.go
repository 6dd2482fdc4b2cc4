package model

import "errors"

var (
	// ErrNotFound is the generic storage miss.
	ErrNotFound = errors.New("not found")

	// ErrTokenNotFound means the presented digest matches no stored token.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired means the token outlived its validity window. Only the
	// presented token is revoked; natural expiry is not evidence of theft.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenReuseDetected means an already-revoked token was replayed.
	// By the time this is returned the whole family has been revoked and the
	// owning session version bumped.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)
