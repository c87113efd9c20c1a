// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/pkg/ids"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// # Directory Service

// Directory implements user-directory use cases: creation on behalf of the
// onboarding workflows and the admin management operations.
//
// # Review Process
//
// This service is critical for access control. Any change to the scoped-role
// invariant or the activation logic must be reviewed by the security team.
type Directory struct {
	store    Store
	idp      idp.Client
	recorder audit.Recorder
}

// NewDirectory constructs a [Directory] with its dependencies.
func NewDirectory(store Store, idpClient idp.Client, recorder audit.Recorder) *Directory {
	return &Directory{
		store:    store,
		idp:      idpClient,
		recorder: recorder,
	}
}

// NewUserInput holds the data the onboarding workflows provide when handing
// a freshly verified or invited account to the directory.
type NewUserInput struct {
	IdPID       string
	Email       string
	Username    string
	DisplayName string
	Role        sec.Role
	NetworkID   string
	StationID   string

	// Verified and Active are true for invitation-created accounts and for
	// registrations that just completed email verification.
	Verified bool
	Active   bool
}

// ValidateScope enforces the scoped-role invariant: a scoped role MUST carry
// its scope identifiers, an unscoped role MUST NOT.
func ValidateScope(role sec.Role, networkID, stationID string) error {
	switch role {
	case sec.RolePartner:
		if networkID == "" {
			return apperr.ValidationError("Partner accounts require a network scope",
				apperr.FieldError{Field: FieldNetworkID, Message: "This field is required"})
		}
	case sec.RoleOperator:
		if stationID == "" {
			return apperr.ValidationError("Operator accounts require a station scope",
				apperr.FieldError{Field: FieldStationID, Message: "This field is required"})
		}
	default:
		if networkID != "" || stationID != "" {
			return apperr.ValidationError("Scope identifiers are only valid for partner and operator roles")
		}
	}
	return nil
}

/*
Create persists a new directory row on behalf of an onboarding workflow.

Description: Canonicalizes email/username, enforces the scoped-role
invariant, and assigns the prefixed local id. Ownership of the User passes
to the directory here.

Parameters:
  - ctx: context.Context
  - input: NewUserInput

Returns:
  - *User: Created entity
  - error: Validation, Conflict, or storage errors
*/
func (directory *Directory) Create(ctx context.Context, input NewUserInput) (*User, error) {
	if err := ValidateScope(input.Role, input.NetworkID, input.StationID); err != nil {
		return nil, err
	}

	user := &User{
		ID:          ids.New(ids.PrefixUser),
		IdPID:       input.IdPID,
		Email:       normalize.Email(input.Email),
		Username:    normalize.Username(input.Username),
		DisplayName: input.DisplayName,
		Role:        input.Role,
		NetworkID:   input.NetworkID,
		StationID:   input.StationID,
		IsVerified:  input.Verified,
		IsActive:    input.Active,
	}

	if err := directory.store.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// # Admin Operations

/*
ChangeRole assigns a new role (with scope) to an existing user.

Description: Re-validates the scoped-role invariant against the new role and
clears stale scope identifiers when moving to an unscoped role. The change is
audited with the acting admin as actor.

Parameters:
  - ctx: context.Context
  - actor: string (acting admin's id)
  - userID: string
  - role: sec.Role
  - networkID, stationID: string (scope for the new role)

Returns:
  - *User: Updated entity
  - error: NotFound, Validation, or storage errors
*/
func (directory *Directory) ChangeRole(ctx context.Context, actor, userID string, role sec.Role, networkID, stationID string) (*User, error) {
	if err := ValidateScope(role, networkID, stationID); err != nil {
		return nil, err
	}

	target, err := directory.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	previousRole := target.Role
	target.Role = role
	target.NetworkID = networkID
	target.StationID = stationID

	if err := directory.store.Update(ctx, target); err != nil {
		return nil, err
	}

	_ = directory.recorder.Append(ctx, audit.Entry{
		Actor:    actor,
		Action:   audit.ActionRoleChanged,
		Resource: target.ID,
		Outcome:  audit.OutcomeSuccess,
		Detail:   map[string]any{"from": previousRole, "to": role},
	})

	return target, nil
}

/*
SetActive activates or deactivates an account, mirroring the change to the IdP.

Description: The IdP remains the system of record for enablement; the local
flag follows it. The IdP call happens first so a provider failure leaves both
systems unchanged.

Parameters:
  - ctx: context.Context
  - actor: string
  - userID: string
  - active: bool

Returns:
  - *User: Updated entity
  - error: NotFound, Unavailable, or storage errors
*/
func (directory *Directory) SetActive(ctx context.Context, actor, userID string, active bool) (*User, error) {
	target, err := directory.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if target.IsActive == active {
		return target, nil
	}

	var idpErr error
	if active {
		idpErr = directory.idp.EnableIdentity(ctx, target.IdPID)
	} else {
		idpErr = directory.idp.DisableIdentity(ctx, target.IdPID)
	}
	if idpErr != nil {
		return nil, mapIdPError(idpErr)
	}

	target.IsActive = active
	if err := directory.store.Update(ctx, target); err != nil {
		return nil, err
	}

	action := audit.ActionUserDeactivated
	if active {
		action = audit.ActionUserActivated
	}
	_ = directory.recorder.Append(ctx, audit.Entry{
		Actor:    actor,
		Action:   action,
		Resource: target.ID,
		Outcome:  audit.OutcomeSuccess,
	})

	return target, nil
}

/*
Delete soft-deletes an account and disables its IdP identity.

Description: Users are never hard-deleted; the row remains for audit
integrity. The IdP identity is disabled, not removed.
*/
func (directory *Directory) Delete(ctx context.Context, actor, userID string) error {
	target, err := directory.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := directory.idp.DisableIdentity(ctx, target.IdPID); err != nil {
		return mapIdPError(err)
	}

	if err := directory.store.SoftDelete(ctx, target.ID); err != nil {
		return fmt.Errorf("user_directory_delete_failed: %w", err)
	}

	_ = directory.recorder.Append(ctx, audit.Entry{
		Actor:    actor,
		Action:   audit.ActionUserDeleted,
		Resource: target.ID,
		Outcome:  audit.OutcomeSuccess,
	})

	return nil
}

// Get returns a user by local id.
func (directory *Directory) Get(ctx context.Context, userID string) (*User, error) {
	return directory.store.FindByID(ctx, userID)
}

// FindByEmail returns the user owning a canonicalized email address.
func (directory *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	return directory.store.FindByEmail(ctx, normalize.Email(email))
}

// RecordLogin stamps the last-login timestamp of an account.
func (directory *Directory) RecordLogin(ctx context.Context, userID string) error {
	return directory.store.UpdateLastLogin(ctx, userID)
}

// FindByUsername returns the user owning a canonicalized username.
func (directory *Directory) FindByUsername(ctx context.Context, username string) (*User, error) {
	return directory.store.FindByUsername(ctx, normalize.Username(username))
}

// GetBySubject returns the user correlated with an IdP subject.
func (directory *Directory) GetBySubject(ctx context.Context, idpID string) (*User, error) {
	return directory.store.FindByIdPID(ctx, idpID)
}

// mapIdPError translates IdP sentinel errors into the client-facing taxonomy.
func mapIdPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, idp.ErrNotFound):
		return apperr.NotFound("identity")
	case errors.Is(err, idp.ErrConflict):
		return apperr.Conflict("An identity with this email already exists")
	default:
		return apperr.Unavailable("Identity provider is unavailable", err)
	}
}
