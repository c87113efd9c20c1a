// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package invitation implements admin-issued onboarding.

An invitation pre-assigns a role (and scope, where the role demands one) to
an email address. The invitee proves control of the address by following the
emailed link and choosing their credentials; only then do the IdP identity
and the directory entry come to exist.

# Lifecycle

	pending ──accept──▶ accepted
	   │
	   ├──ttl elapsed──▶ expired
	   └──admin cancel─▶ cancelled

Acceptance claims the pending row first and compensates back to pending if
the identity provider rejects the account creation, so a transient IdP
outage never burns an invitation.
*/
package invitation

import (
	"time"

	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// Invitation statuses.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Invitation is an admin-issued, role-carrying onboarding offer.
type Invitation struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Role  sec.Role `json:"role"`

	// NetworkID and StationID carry the scope the role will receive on
	// acceptance; populated only for scoped roles.
	NetworkID string `json:"network_id,omitempty"`
	StationID string `json:"station_id,omitempty"`

	// InvitedBy is the local id of the admin who issued the invitation.
	InvitedBy string `json:"invited_by"`

	TokenDigest string `json:"-"`
	Status      string `json:"status"`

	// AcceptedBy is the local id of the user the acceptance created.
	AcceptedBy string     `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the acceptance window has elapsed at the given
// instant.
func (invitation *Invitation) IsExpired(now time.Time) bool {
	return now.After(invitation.ExpiresAt)
}
