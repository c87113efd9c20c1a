// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package invitation

import (
	"context"
	"errors"
	"time"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/notify"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/pkg/ids"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// invitationTokenBytes is the entropy of the single-use invitation token.
const invitationTokenBytes = 32

// Service implements the admin-issued onboarding use cases.
type Service struct {
	store      Store
	directory  *user.Directory
	idp        idp.Client
	notifier   notify.Notifier
	recorder   audit.Recorder
	defaultTTL time.Duration

	now func() time.Time
}

// NewService constructs an invitation [Service]. defaultTTL bounds the
// acceptance window when the issuing admin does not set one.
func NewService(store Store, directory *user.Directory, idpClient idp.Client,
	notifier notify.Notifier, recorder audit.Recorder, defaultTTL time.Duration) *Service {
	return &Service{
		store:      store,
		directory:  directory,
		idp:        idpClient,
		notifier:   notifier,
		recorder:   recorder,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// CreateInput is the data an admin provides when issuing an invitation.
type CreateInput struct {
	Email     string
	Role      sec.Role
	NetworkID string
	StationID string

	// TTL overrides the service default when positive.
	TTL time.Duration
}

/*
Create issues a role-carrying invitation to an email address.

Description: Validates the scoped-role invariant against the offered role,
rejects addresses already in the directory, persists the pending invitation,
and emails the acceptance link. No IdP identity exists until acceptance.

Parameters:
  - ctx: context.Context
  - actor: string (issuing admin's id)
  - input: CreateInput

Returns:
  - *Invitation: The pending invitation
  - error: Validation on scope mismatch, Conflict when the address is taken
*/
func (service *Service) Create(ctx context.Context, actor string, input CreateInput) (*Invitation, error) {
	if err := user.ValidateScope(input.Role, input.NetworkID, input.StationID); err != nil {
		return nil, err
	}

	email := normalize.Email(input.Email)
	if _, err := service.directory.FindByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("An account with this email already exists")
	} else if !isNotFound(err) {
		return nil, err
	}

	token, err := sec.GenerateOpaqueToken(invitationTokenBytes)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = service.defaultTTL
	}

	created := &Invitation{
		ID:          ids.New(ids.PrefixInvitation),
		Email:       email,
		Role:        input.Role,
		NetworkID:   input.NetworkID,
		StationID:   input.StationID,
		InvitedBy:   actor,
		TokenDigest: sec.DigestToken(token),
		Status:      StatusPending,
		ExpiresAt:   service.now().Add(ttl),
	}
	if err := service.store.Create(ctx, created); err != nil {
		return nil, err
	}

	if err := service.notifier.SendInvitation(ctx, email, string(input.Role), token, created.ExpiresAt); err != nil {
		// The row stays; a cancel-and-reissue recovers delivery failures.
		_ = service.recorder.Append(ctx, audit.Entry{
			Actor:    actor,
			Action:   audit.ActionInvitationCreated,
			Resource: created.ID,
			Outcome:  audit.OutcomeFailure,
			Detail:   map[string]any{"email": email, "reason": "delivery"},
		})
		return created, nil
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    actor,
		Action:   audit.ActionInvitationCreated,
		Resource: created.ID,
		Outcome:  audit.OutcomeSuccess,
		Detail:   map[string]any{"email": email, "role": input.Role},
	})
	return created, nil
}

// AcceptInput is the data the invitee provides when claiming an invitation.
type AcceptInput struct {
	Token       string
	Username    string
	DisplayName string
	Password    string
}

/*
Accept claims an invitation and materializes the invited account.

Description: The pending row is claimed by compare-and-set before the IdP
call, so concurrent accepts resolve to one winner. If the IdP rejects the
account creation the claim is released and the invitee can retry; the
invitation is only consumed by a completed acceptance.

Parameters:
  - ctx: context.Context
  - input: AcceptInput

Returns:
  - *user.User: The created directory entry carrying the invited role
  - error: NotFound for unknown tokens, Gone past expiry or after
    cancellation, Conflict when already accepted
*/
func (service *Service) Accept(ctx context.Context, input AcceptInput) (*user.User, error) {
	claimed, err := service.store.FindByTokenDigest(ctx, sec.DigestToken(input.Token))
	if err != nil {
		return nil, err
	}

	switch claimed.Status {
	case StatusAccepted:
		return nil, apperr.Conflict("This invitation has already been accepted")
	case StatusExpired, StatusCancelled:
		return nil, apperr.Gone("This invitation is no longer valid")
	}

	if claimed.IsExpired(service.now()) {
		_, _ = service.store.MarkExpired(ctx, claimed.ID)
		return nil, apperr.Gone("This invitation has expired")
	}

	username := normalize.Username(input.Username)
	if _, err := service.directory.FindByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict("This username is already taken")
	} else if !isNotFound(err) {
		return nil, err
	}

	won, err := service.store.Claim(ctx, claimed.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperr.Conflict("This invitation has already been accepted")
	}

	idpID, err := service.idp.CreateIdentity(ctx, idp.NewIdentity{
		Email:    claimed.Email,
		Username: username,
		Password: input.Password,
		Enabled:  true,
		Role:     string(claimed.Role),
	})
	if err != nil {
		// Compensate so a transient provider outage never burns the offer.
		_ = service.store.Release(ctx, claimed.ID)
		return nil, mapIdPError(err)
	}

	created, err := service.directory.Create(ctx, user.NewUserInput{
		IdPID:       idpID,
		Email:       claimed.Email,
		Username:    username,
		DisplayName: input.DisplayName,
		Role:        claimed.Role,
		NetworkID:   claimed.NetworkID,
		StationID:   claimed.StationID,
		Verified:    true,
		Active:      true,
	})
	if err != nil {
		_ = service.idp.DisableIdentity(ctx, idpID)
		_ = service.store.Release(ctx, claimed.ID)
		return nil, err
	}

	if err := service.store.RecordAcceptance(ctx, claimed.ID, created.ID); err != nil {
		return nil, err
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    created.ID,
		Action:   audit.ActionInvitationAccepted,
		Resource: claimed.ID,
		Outcome:  audit.OutcomeSuccess,
		Detail:   map[string]any{"role": claimed.Role},
	})
	return created, nil
}

/*
Cancel withdraws a pending invitation.

Description: Only a pending, unexpired invitation can be withdrawn; any other
state reports Conflict. A lapsed invitation is flipped to expired on the way.

Parameters:
  - ctx: context.Context
  - actor: string (acting admin's id)
  - id: string

Returns:
  - error: NotFound for unknown ids, Conflict for any non-pending state
*/
func (service *Service) Cancel(ctx context.Context, actor, id string) error {
	found, err := service.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	switch found.Status {
	case StatusAccepted:
		return apperr.Conflict("This invitation has already been accepted")
	case StatusCancelled, StatusExpired:
		return apperr.Conflict("This invitation is no longer pending")
	}

	if found.IsExpired(service.now()) {
		_, _ = service.store.MarkExpired(ctx, found.ID)
		return apperr.Conflict("This invitation is no longer pending")
	}

	won, err := service.store.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !won {
		return apperr.Conflict("This invitation is no longer pending")
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    actor,
		Action:   audit.ActionInvitationCanceled,
		Resource: id,
		Outcome:  audit.OutcomeSuccess,
	})
	return nil
}

// List returns one page of invitations for the admin overview.
func (service *Service) List(ctx context.Context, offset, limit int) ([]Invitation, error) {
	return service.store.List(ctx, offset, limit)
}

// isNotFound reports whether err is the taxonomy's NotFound.
func isNotFound(err error) bool {
	appErr := apperr.As(err)
	return appErr != nil && appErr.HTTPStatus == 404
}

// mapIdPError translates IdP sentinel errors into the client-facing taxonomy.
func mapIdPError(err error) error {
	switch {
	case errors.Is(err, idp.ErrConflict):
		return apperr.Conflict("An identity with this email already exists")
	case errors.Is(err, idp.ErrNotFound):
		return apperr.NotFound("identity")
	default:
		return apperr.Unavailable("Identity provider is unavailable", err)
	}
}
