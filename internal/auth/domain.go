// Package auth issues identity tokens for the access engine to resolve.
package auth

import (
	"errors"
	"time"
)

// ErrInvalidCredentials indicates login failure. Deliberately covers
// unknown email, wrong password and disabled accounts alike.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// TokenResult is a freshly issued identity token with its expiry.
type TokenResult struct {
	Token     string
	ExpiresAt time.Time
	Role      string
}
