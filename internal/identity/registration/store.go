// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package registration

import (
	"context"
	"time"
)

// Store defines the persistence contract for staged registrations.
//
// The state-changing methods are compare-and-set: they only touch rows in
// the expected source status and report whether the transition happened, so
// concurrent callers serialize to one winner without holding locks.
type Store interface {
	/*
		Create persists a new pending registration.

		Parameters:
		  - ctx: context.Context
		  - registration: *Registration (ID and TokenDigest already assigned)

		Returns:
		  - error: Conflict when a pending registration for the email exists
	*/
	Create(ctx context.Context, registration *Registration) error

	/*
		FindByTokenDigest looks up a registration by its token digest.

		Returns:
		  - *Registration: The matching registration in any status
		  - error: NotFound when no row matches
	*/
	FindByTokenDigest(ctx context.Context, digest string) (*Registration, error)

	/*
		FindPendingByEmail returns the pending registration for an email
		address, if one exists.

		Returns:
		  - *Registration: The pending registration
		  - error: NotFound when nothing is pending for the address
	*/
	FindPendingByEmail(ctx context.Context, email string) (*Registration, error)

	/*
		MarkVerified flips a registration from pending to verified.

		Returns:
		  - bool: true when this call performed the transition
		  - error: Storage errors only; a lost race is (false, nil)
	*/
	MarkVerified(ctx context.Context, id string) (bool, error)

	/*
		MarkExpired flips a registration from pending to expired.

		Returns:
		  - bool: true when this call performed the transition
		  - error: Storage errors only
	*/
	MarkExpired(ctx context.Context, id string) (bool, error)

	/*
		RotateToken replaces the verification token digest of a pending
		registration and extends its expiry, invalidating the previously
		issued link.

		Returns:
		  - error: NotFound when the registration is no longer pending
	*/
	RotateToken(ctx context.Context, id, digest string, expiresAt time.Time) error

	/*
		RecordResend atomically increments the resend counter of a pending
		registration, honoring the per-registration cap and cooldown.

		Parameters:
		  - ctx: context.Context
		  - id: string
		  - maxResends: int
		  - cooldown: time.Duration (minimum gap since the previous resend)

		Returns:
		  - bool: true when the resend was admitted
		  - error: Storage errors only; a denied resend is (false, nil)
	*/
	RecordResend(ctx context.Context, id string, maxResends int, cooldown time.Duration) (bool, error)
}
