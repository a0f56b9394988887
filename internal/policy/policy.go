// Package policy decides whether a URL record is currently reachable.
//
// Every predicate is a pure function of a record snapshot and a clock
// reading, with no store or wall-clock dependency of its own.
package policy

import (
	"time"

	"github.com/snipgo/snip/internal/model"
)

// Reason identifies why a record is not reachable.
type Reason string

const (
	ReasonDeactivated    Reason = "deactivated"
	ReasonExpired        Reason = "expired"
	ReasonClickExhausted Reason = "click_exhausted"
)

// Message returns the caller-facing description for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonDeactivated:
		return "This URL has been deactivated"
	case ReasonExpired:
		return "This URL has expired"
	case ReasonClickExhausted:
		return "This URL has reached its maximum click limit"
	}
	return "This URL is not accessible"
}

// Deactivated reports whether the record has been soft-deleted or
// explicitly deactivated.
func Deactivated(u *model.URL) bool {
	return !u.IsActive
}

// Expired reports whether now is strictly after the record's expiry.
// A record with no expiry never expires, and now == expires_at is still
// within the window. Both sides are normalized to UTC, so timestamps read
// back without zone information compare in the reference timezone.
func Expired(u *model.URL, now time.Time) bool {
	if u.ExpiresAt == nil {
		return false
	}
	return now.UTC().After(u.ExpiresAt.UTC())
}

// ClickExhausted reports whether the record's click count has reached its
// cap. Equal counts deny.
func ClickExhausted(u *model.URL) bool {
	if u.MaxClicks == nil {
		return false
	}
	return u.ClickCount >= *u.MaxClicks
}

// Accessible reports whether no denial condition holds.
func Accessible(u *model.URL, now time.Time) bool {
	return !Deactivated(u) && !Expired(u, now) && !ClickExhausted(u)
}

// Deny returns the first denial reason in reporting order: deactivated,
// then expired, then click-exhausted. ok is false when the record is
// accessible.
func Deny(u *model.URL, now time.Time) (reason Reason, ok bool) {
	switch {
	case Deactivated(u):
		return ReasonDeactivated, true
	case Expired(u, now):
		return ReasonExpired, true
	case ClickExhausted(u):
		return ReasonClickExhausted, true
	}
	return "", false
}
