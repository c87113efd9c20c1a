// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package registration implements the self-service onboarding workflow.

A registration is the staging record between "someone submitted the signup
form" and "a verified directory entry exists". The identity provider holds
the credentials from the first step; the directory row is only created once
the email address is proven.

# Lifecycle

	pending ──verify──▶ verified
	   │
	   ├──ttl elapsed──▶ expired
	   └──superseded───▶ cancelled

Status transitions are compare-and-set at the storage layer so concurrent
verification attempts resolve to exactly one winner.
*/
package registration

import (
	"time"
)

// Registration statuses.
const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Registration is a staged signup awaiting email verification.
//
// TokenDigest holds the SHA-256 of the single-use verification token; the
// raw token leaves the process only inside the notification email.
type Registration struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	IdPID       string     `json:"-"`
	TokenDigest string     `json:"-"`
	Status      string     `json:"status"`
	ResendCount int        `json:"resend_count"`
	LastResend  *time.Time `json:"last_resend,omitempty"`
	RequestIP   string     `json:"-"`
	UserAgent   string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsExpired reports whether the verification window has elapsed at the given
// instant. Expiry is evaluated lazily: rows flip to StatusExpired when a
// verify or resend touches them past the deadline.
func (registration *Registration) IsExpired(now time.Time) bool {
	return now.After(registration.ExpiresAt)
}
