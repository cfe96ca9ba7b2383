package auth

import (
	"errors"
	"fmt"
)

// Every failure a flow can produce maps to exactly one of these values.
// The HTTP layer owns the user-visible mapping and decides which kinds are
// safe to reveal.
var (
	// Token verification.
	ErrInvalidToken     = errors.New("invalid token")
	ErrKeyResolution    = errors.New("unable to resolve signing key")
	ErrSignatureOrClaim = errors.New("token signature or claim check failed")

	// Flow errors.
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrStateMismatch    = errors.New("state parameter mismatch")
	ErrCodeMismatch     = errors.New("verification code mismatch")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInitiationFailed = errors.New("failed to initiate authentication")
	ErrIncompleteResult = errors.New("authentication result missing tokens")
	ErrUserNotFound     = errors.New("user not found")

	// Required settings absent. Raised at first use, not at process start.
	ErrConfiguration = errors.New("missing required configuration")
)

// TokenExchangeError is returned when the provider's token endpoint answers
// a code exchange with a non-success response. It carries the provider's
// error body for the caller to log or map.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
}
