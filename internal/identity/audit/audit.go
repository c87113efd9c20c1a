// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package audit records sensitive identity actions in an append-only trail.

Every authentication, registration, verification, role change, and
reconciliation outcome produces an [Entry]. Entries are never mutated or
deleted by this service; retention is an operations concern.
*/
package audit

import (
	"context"
	"time"
)

// # Actions

const (
	ActionLogin              = "login"
	ActionLogout             = "logout"
	ActionRefresh            = "refresh"
	ActionRegister           = "register"
	ActionVerify             = "verify"
	ActionResendVerification = "resend_verification"
	ActionInvitationCreated  = "invitation_created"
	ActionInvitationAccepted = "invitation_accepted"
	ActionInvitationCanceled = "invitation_canceled"
	ActionRoleChanged        = "role_changed"
	ActionUserDeactivated    = "user_deactivated"
	ActionUserActivated      = "user_activated"
	ActionUserDeleted        = "user_deleted"
	ActionReconcileSync      = "reconcile_sync"
)

// # Outcomes

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Entry is a single append-only audit record.
type Entry struct {
	ID string `json:"id"`

	// Actor identifies who performed the action: a local user id, an IdP
	// subject, or "system" for background jobs.
	Actor string `json:"actor"`

	Action string `json:"action"`

	// Resource references the affected entity (user id, registration id, ...).
	Resource string `json:"resource"`

	Outcome string `json:"outcome"`

	// Detail carries optional structured context, stored as JSONB.
	Detail map[string]any `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ActorSystem is the actor recorded for background-job entries.
const ActorSystem = "system"

// Recorder appends audit entries.
//
// # Failure Policy
//
// Audit persistence must never fail the user-facing operation it describes;
// implementations log their own errors and callers ignore the return where
// the primary operation already succeeded.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
}
