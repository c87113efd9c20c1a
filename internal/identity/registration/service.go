// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package registration

import (
	"context"
	"errors"
	"time"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/notify"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/pkg/ids"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// verificationTokenBytes is the entropy of the single-use verification token.
const verificationTokenBytes = 32

// Options carries the tunable knobs of the onboarding workflow.
type Options struct {
	// VerificationTTL is the window a pending registration stays verifiable.
	VerificationTTL time.Duration

	// ResendCooldown is the minimum gap between two verification resends.
	ResendCooldown time.Duration

	// ResendMax caps resends per registration for its whole lifetime.
	ResendMax int
}

// Service implements the self-service onboarding use cases.
//
// # Ordering
//
// The identity provider owns credentials, so the IdP identity is created
// before the local staging row: a failure then leaves no local state at all,
// while the reverse order would strand a registration nobody can complete.
type Service struct {
	store     Store
	directory *user.Directory
	idp       idp.Client
	notifier  notify.Notifier
	recorder  audit.Recorder
	metrics   *metrics.Metrics
	options   Options

	now func() time.Time
}

// NewService constructs a registration [Service].
func NewService(store Store, directory *user.Directory, idpClient idp.Client,
	notifier notify.Notifier, recorder audit.Recorder, m *metrics.Metrics, options Options) *Service {
	return &Service{
		store:     store,
		directory: directory,
		idp:       idpClient,
		notifier:  notifier,
		recorder:  recorder,
		metrics:   m,
		options:   options,
		now:       time.Now,
	}
}

// RegisterInput is the data collected from the signup form.
type RegisterInput struct {
	Email       string
	Username    string
	DisplayName string
	Password    string

	// RequestIP and UserAgent are captured for the audit trail.
	RequestIP string
	UserAgent string
}

/*
Register stages a new self-service signup.

Description: Canonicalizes identifiers, rejects addresses and usernames
already present in the directory or held by a live pending registration,
supersedes a lapsed pending registration for the same address, creates a
disabled IdP identity holding the credentials, persists the staging row, and
emails the verification link.

Parameters:
  - ctx: context.Context
  - input: RegisterInput

Returns:
  - *Registration: The staged registration (token digest only, never the token)
  - error: Conflict when email/username is taken, Unavailable on IdP failure
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*Registration, error) {
	email := normalize.Email(input.Email)
	username := normalize.Username(input.Username)

	if _, err := service.directory.FindByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("An account with this email already exists")
	} else if !isNotFound(err) {
		return nil, err
	}
	if _, err := service.directory.FindByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict("This username is already taken")
	} else if !isNotFound(err) {
		return nil, err
	}

	// A live pending signup blocks the address: anyone could otherwise kill a
	// stranger's verification link by re-posting their email. Only a lapsed
	// one is superseded.
	if prior, err := service.store.FindPendingByEmail(ctx, email); err == nil {
		if !prior.IsExpired(service.now()) {
			return nil, apperr.Conflict("A signup for this email is already awaiting verification")
		}
		_, _ = service.store.MarkExpired(ctx, prior.ID)
	} else if !isNotFound(err) {
		return nil, err
	}

	idpID, err := service.idp.CreateIdentity(ctx, idp.NewIdentity{
		Email:    email,
		Username: username,
		Password: input.Password,
		Enabled:  false,
		Role:     string(sec.RoleUser),
	})
	if err != nil {
		return nil, mapIdPError(err)
	}

	token, err := sec.GenerateOpaqueToken(verificationTokenBytes)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	staged := &Registration{
		ID:          ids.New(ids.PrefixRegistration),
		Email:       email,
		Username:    username,
		DisplayName: input.DisplayName,
		IdPID:       idpID,
		TokenDigest: sec.DigestToken(token),
		Status:      StatusPending,
		RequestIP:   input.RequestIP,
		UserAgent:   input.UserAgent,
		ExpiresAt:   service.now().Add(service.options.VerificationTTL),
	}
	if err := service.store.Create(ctx, staged); err != nil {
		return nil, err
	}

	// Delivery failures are recoverable through the resend endpoint.
	notifyOutcome := audit.OutcomeSuccess
	if err := service.notifier.SendVerification(ctx, email, username, token, staged.ExpiresAt); err != nil {
		notifyOutcome = audit.OutcomeFailure
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    staged.ID,
		Action:   audit.ActionRegister,
		Resource: staged.ID,
		Outcome:  audit.OutcomeSuccess,
		Detail: map[string]any{
			"email":    email,
			"ip":       input.RequestIP,
			"delivery": notifyOutcome,
		},
	})
	service.metrics.ObserveRegistration()

	return staged, nil
}

/*
Verify consumes a verification token and promotes the registration.

Description: The pending→verified flip is compare-and-set, so exactly one of
any number of concurrent attempts wins; the rest observe Conflict. The
winning attempt enables the IdP identity and creates the directory entry.

Parameters:
  - ctx: context.Context
  - token: string (the raw token from the emailed link)

Returns:
  - *user.User: The freshly created directory entry
  - error: NotFound for unknown tokens, Gone past expiry, Conflict when
    already verified
*/
func (service *Service) Verify(ctx context.Context, token string) (*user.User, error) {
	staged, err := service.store.FindByTokenDigest(ctx, sec.DigestToken(token))
	if err != nil {
		return nil, err
	}

	switch staged.Status {
	case StatusVerified:
		return nil, apperr.Conflict("This registration is already verified")
	case StatusExpired, StatusCancelled:
		return nil, apperr.Gone("This verification link is no longer valid")
	}

	if staged.IsExpired(service.now()) {
		// Lazy expiry; the CAS makes the double flip harmless.
		_, _ = service.store.MarkExpired(ctx, staged.ID)
		return nil, apperr.Gone("This verification link has expired")
	}

	won, err := service.store.MarkVerified(ctx, staged.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperr.Conflict("This registration is already verified")
	}

	if err := service.idp.EnableIdentity(ctx, staged.IdPID); err != nil {
		// The row stays verified; reconciliation repairs the enablement gap.
		service.auditVerify(ctx, staged, audit.OutcomeFailure)
		return nil, mapIdPError(err)
	}

	created, err := service.directory.Create(ctx, user.NewUserInput{
		IdPID:       staged.IdPID,
		Email:       staged.Email,
		Username:    staged.Username,
		DisplayName: staged.DisplayName,
		Role:        sec.RoleUser,
		Verified:    true,
		Active:      true,
	})
	if err != nil {
		service.auditVerify(ctx, staged, audit.OutcomeFailure)
		return nil, err
	}

	service.auditVerify(ctx, staged, audit.OutcomeSuccess)
	return created, nil
}

/*
ResendVerification re-issues the verification email for a pending signup.

Description: Enumeration-safe: an unknown or non-pending address reports the
same acceptance as a real one. A real pending registration is throttled by
the resend cap and cooldown; only a throttled caller sees a distinct answer
(RateLimited), since by then the address is known to its owner anyway.

Parameters:
  - ctx: context.Context
  - email: string

Returns:
  - error: RateLimited when the cap or cooldown denies the resend
*/
func (service *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalize.Email(email)

	staged, err := service.store.FindPendingByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	if staged.IsExpired(service.now()) {
		_, _ = service.store.MarkExpired(ctx, staged.ID)
		return nil
	}

	admitted, err := service.store.RecordResend(ctx, staged.ID,
		service.options.ResendMax, service.options.ResendCooldown)
	if err != nil {
		return err
	}
	if !admitted {
		_ = service.recorder.Append(ctx, audit.Entry{
			Actor:    staged.ID,
			Action:   audit.ActionResendVerification,
			Resource: staged.ID,
			Outcome:  audit.OutcomeDenied,
		})
		return apperr.RateLimited(int(service.options.ResendCooldown.Seconds()))
	}

	return service.rotateAndSend(ctx, staged)
}

// rotateAndSend invalidates the previous link by rotating the token digest,
// extends the verification window, and emails the fresh link.
func (service *Service) rotateAndSend(ctx context.Context, staged *Registration) error {
	token, err := sec.GenerateOpaqueToken(verificationTokenBytes)
	if err != nil {
		return apperr.Internal(err)
	}

	expiresAt := service.now().Add(service.options.VerificationTTL)
	if err := service.store.RotateToken(ctx, staged.ID, sec.DigestToken(token), expiresAt); err != nil {
		return err
	}

	if err := service.notifier.SendVerification(ctx, staged.Email, staged.Username, token, expiresAt); err != nil {
		return apperr.Unavailable("Could not deliver the verification email", err)
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    staged.ID,
		Action:   audit.ActionResendVerification,
		Resource: staged.ID,
		Outcome:  audit.OutcomeSuccess,
	})
	return nil
}

func (service *Service) auditVerify(ctx context.Context, staged *Registration, outcome string) {
	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    staged.ID,
		Action:   audit.ActionVerify,
		Resource: staged.ID,
		Outcome:  outcome,
		Detail:   map[string]any{"email": staged.Email},
	})
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
