// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package invitation

import (
	"context"
)

// Store defines the persistence contract for invitations.
//
// Claim and Release form the two halves of the acceptance protocol: Claim
// takes the pending row out of circulation before any external call, and
// Release puts it back when the external call fails.
type Store interface {
	/*
		Create persists a new pending invitation.

		Returns:
		  - error: Conflict when a pending invitation for the email exists
	*/
	Create(ctx context.Context, invitation *Invitation) error

	/*
		FindByID looks up an invitation by its local id.

		Returns:
		  - *Invitation: The matching invitation in any status
		  - error: NotFound when no row matches
	*/
	FindByID(ctx context.Context, id string) (*Invitation, error)

	/*
		FindByTokenDigest looks up an invitation by its token digest.

		Returns:
		  - *Invitation: The matching invitation in any status
		  - error: NotFound when no row matches
	*/
	FindByTokenDigest(ctx context.Context, digest string) (*Invitation, error)

	/*
		Claim flips an invitation from pending to accepted, reserving it for
		the caller.

		Returns:
		  - bool: true when this call performed the transition
		  - error: Storage errors only; a lost race is (false, nil)
	*/
	Claim(ctx context.Context, id string) (bool, error)

	/*
		Release compensates a failed acceptance, flipping accepted back to
		pending so the invitee can retry.

		Returns:
		  - error: Storage errors only
	*/
	Release(ctx context.Context, id string) error

	/*
		RecordAcceptance stamps the claimed invitation with the directory
		entry its acceptance created.

		Returns:
		  - error: Storage errors only
	*/
	RecordAcceptance(ctx context.Context, id, userID string) error

	/*
		MarkExpired flips an invitation from pending to expired.

		Returns:
		  - bool: true when this call performed the transition
		  - error: Storage errors only
	*/
	MarkExpired(ctx context.Context, id string) (bool, error)

	/*
		Cancel flips an invitation from pending to cancelled.

		Returns:
		  - bool: true when this call performed the transition
		  - error: Storage errors only
	*/
	Cancel(ctx context.Context, id string) (bool, error)

	/*
		List returns one page of invitations, newest first.

		Returns:
		  - []Invitation: The page, possibly empty
		  - error: Storage errors only
	*/
	List(ctx context.Context, offset, limit int) ([]Invitation, error)
}
