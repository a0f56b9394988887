package service

import (
	"errors"
	"fmt"

	"github.com/snipgo/snip/internal/policy"
)

var (
	// ErrNotFound reports an unknown record identity or identifier.
	ErrNotFound = errors.New("short URL not found")
	// ErrAliasConflict reports that a custom alias collides with an
	// existing short code or alias, whether detected by the pre-check or
	// by the database constraint at commit.
	ErrAliasConflict = errors.New("custom alias is already taken")
	// ErrUnauthorized reports a missing or wrong password on a protected
	// URL. Distinct from ErrNotFound and from the access-denied outcome.
	ErrUnauthorized = errors.New("invalid or missing password")

	// Validation failures, rejected before any store interaction.
	ErrInvalidURL       = errors.New("invalid URL")
	ErrInvalidAlias     = errors.New("invalid custom alias")
	ErrInvalidMaxClicks = errors.New("max_clicks must be positive")
	ErrPasswordTooShort = errors.New("password must be at least 4 characters")
	ErrInvalidTitle     = errors.New("title too long")
	ErrInvalidDesc      = errors.New("description too long")
	ErrInvalidActive    = errors.New("is_active cannot be null")
)

// GoneError reports a record that exists but is blocked by policy,
// carrying the first denial reason in reporting order.
type GoneError struct {
	Reason policy.Reason
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("short URL is not accessible: %s", e.Reason)
}

// IsValidation reports whether err is one of the input-validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidAlias) ||
		errors.Is(err, ErrInvalidMaxClicks) ||
		errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrInvalidTitle) ||
		errors.Is(err, ErrInvalidDesc) ||
		errors.Is(err, ErrInvalidActive)
}
