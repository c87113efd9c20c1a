// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package auth implements the authentication workflow.

Credentials never touch this service: login, refresh, and logout delegate
to the identity provider, and the workflow's job is binding the provider's
verdict to a directory entry and enforcing the local account state.
*/
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// TokenVerifier validates an access token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*sec.AuthClaims, error)
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	TokenType        string       `json:"token_type"`
	ExpiresIn        int64        `json:"expires_in"`
	RefreshExpiresIn int64        `json:"refresh_expires_in"`
	User             user.Summary `json:"user"`
}

// Service implements login, refresh, and logout.
type Service struct {
	idp       idp.Client
	verifier  TokenVerifier
	directory *user.Directory
	limiter   LoginLimiter
	recorder  audit.Recorder
	metrics   *metrics.Metrics

	// rateWindow is echoed back as the Retry-After hint on throttled logins.
	rateWindow time.Duration
}

// NewService constructs an authentication [Service].
func NewService(idpClient idp.Client, verifier TokenVerifier, directory *user.Directory,
	limiter LoginLimiter, recorder audit.Recorder, m *metrics.Metrics, rateWindow time.Duration) *Service {
	return &Service{
		idp:        idpClient,
		verifier:   verifier,
		directory:  directory,
		limiter:    limiter,
		recorder:   recorder,
		metrics:    m,
		rateWindow: rateWindow,
	}
}

// LoginInput carries the credentials and the request origin.
type LoginInput struct {
	Identifier string
	Password   string

	// RequestIP scopes the attempt throttle alongside the identifier.
	RequestIP string
}

/*
Login exchanges credentials for a session.

Description: Throttles attempts per identifier+IP, delegates the credential
check to the identity provider, binds the returned identity to a directory
entry, and refuses inactive or unverified accounts even on correct
credentials. A missing directory entry surfaces as NotFound: that is drift
for the reconciler to repair, never auto-healed inline.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *Session: Token pair plus the account summary
  - error: RateLimited, Unauthorized, NotFound, or Unavailable
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	identifier := normalize.Email(input.Identifier)

	allowed, err := service.limiter.Allow(ctx, identifier+":"+input.RequestIP)
	if err != nil {
		// The throttle is advisory; a counter outage must not take logins down.
		allowed = true
	}
	if !allowed {
		service.auditLogin(ctx, identifier, audit.OutcomeDenied, "throttled")
		service.metrics.ObserveLogin("throttled")
		return nil, apperr.RateLimited(int(service.rateWindow.Seconds()))
	}

	pair, err := service.idp.Authenticate(ctx, identifier, input.Password)
	if err != nil {
		if errors.Is(err, idp.ErrInvalidCredentials) {
			service.auditLogin(ctx, identifier, audit.OutcomeFailure, "credentials")
			service.metrics.ObserveLogin("failure")
			return nil, apperr.Unauthorized("Invalid credentials")
		}
		service.metrics.ObserveLogin("error")
		return nil, apperr.Unavailable("Identity provider is unavailable", err)
	}

	session, account, err := service.buildSession(ctx, pair)
	if err != nil {
		service.auditLogin(ctx, identifier, audit.OutcomeFailure, "binding")
		service.metrics.ObserveLogin("failure")
		return nil, err
	}

	if err := service.directory.RecordLogin(ctx, account.ID); err != nil {
		// Bookkeeping only; the session is already valid.
		service.auditLogin(ctx, account.ID, audit.OutcomeFailure, "last_login")
	}

	service.auditLogin(ctx, account.ID, audit.OutcomeSuccess, "")
	service.metrics.ObserveLogin("success")
	return session, nil
}

/*
Refresh exchanges a refresh token for a fresh session.

Description: Delegates to the identity provider; an expired, revoked, or
unknown refresh token surfaces as Unauthorized. The bound account must still
be active and verified.

Parameters:
  - ctx: context.Context
  - refreshToken: string

Returns:
  - *Session: New token pair plus the account summary
  - error: Unauthorized, NotFound, or Unavailable
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	pair, err := service.idp.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, idp.ErrTokenInvalid) || errors.Is(err, idp.ErrInvalidCredentials) {
			return nil, apperr.Unauthorized("Refresh token is invalid or expired")
		}
		return nil, apperr.Unavailable("Identity provider is unavailable", err)
	}

	session, account, err := service.buildSession(ctx, pair)
	if err != nil {
		return nil, err
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:    account.ID,
		Action:   audit.ActionRefresh,
		Resource: account.ID,
		Outcome:  audit.OutcomeSuccess,
	})
	return session, nil
}

/*
Logout revokes a refresh token.

Description: Idempotent: revoking an already-revoked or unknown token
reports success, matching RFC 7009 semantics at the provider.

Parameters:
  - ctx: context.Context
  - refreshToken: string

Returns:
  - error: Unavailable when the provider cannot be reached
*/
func (service *Service) Logout(ctx context.Context, refreshToken string) error {
	if err := service.idp.Revoke(ctx, refreshToken); err != nil {
		return apperr.Unavailable("Identity provider is unavailable", err)
	}

	_ = service.recorder.Append(ctx, audit.Entry{
		Actor:   audit.ActorSystem,
		Action:  audit.ActionLogout,
		Outcome: audit.OutcomeSuccess,
	})
	return nil
}

// Profile returns the directory entry bound to an IdP subject, for the
// authenticated self-profile endpoint.
func (service *Service) Profile(ctx context.Context, subject string) (*user.User, error) {
	return service.directory.GetBySubject(ctx, subject)
}

// buildSession validates the access token, binds it to a directory entry,
// and enforces the local account state.
func (service *Service) buildSession(ctx context.Context, pair *idp.TokenPair) (*Session, *user.User, error) {
	claims, err := service.verifier.Verify(ctx, pair.AccessToken)
	if err != nil {
		return nil, nil, apperr.Unauthorized("Issued token failed validation")
	}

	account, err := service.directory.GetBySubject(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}

	if !account.IsActive || !account.IsVerified {
		return nil, nil, apperr.Unauthorized("Account is inactive or unverified")
	}

	return &Session{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        int64(pair.ExpiresIn.Seconds()),
		RefreshExpiresIn: int64(pair.RefreshExpiresIn.Seconds()),
		User:             account.Summarize(),
	}, account, nil
}

func (service *Service) auditLogin(ctx context.Context, actor, outcome, reason string) {
	entry := audit.Entry{
		Actor:   actor,
		Action:  audit.ActionLogin,
		Outcome: outcome,
	}
	if reason != "" {
		entry.Detail = map[string]any{"reason": reason}
	}
	_ = service.recorder.Append(ctx, entry)
}
