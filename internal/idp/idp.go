// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package idp is the sole network boundary to the external OAuth2/OIDC identity
provider.

The IdP owns credentials, authentication, and token issuance; this service only
keeps a correlated local directory. Every operation here is a network call and
is treated as fallible and latent by every caller — all requests carry a
bounded deadline and map failures onto a small set of sentinel errors.

Architecture:

  - Client: the contract consumed by the workflow services and the reconciler.
  - HTTPClient: the realm-scoped REST implementation (client.go).
  - Verifier: JWKS-cached validation of IdP-issued access tokens (verifier.go).
*/
package idp

import (
	"context"
	"errors"
	"time"
)

// # Sentinel Errors

var (
	// ErrInvalidCredentials is returned when the IdP rejects an identifier/secret pair.
	ErrInvalidCredentials = errors.New("idp: invalid credentials")

	// ErrTokenInvalid is returned when the IdP rejects a refresh or access token
	// as expired, revoked, or unknown.
	ErrTokenInvalid = errors.New("idp: token invalid")

	// ErrConflict is returned when an identity with the same email or username
	// already exists in the realm.
	ErrConflict = errors.New("idp: identity already exists")

	// ErrNotFound is returned when the referenced identity does not exist.
	ErrNotFound = errors.New("idp: identity not found")

	// ErrUnavailable is returned on timeouts, connection failures, and 5xx
	// responses from the IdP. Callers surface it as a 503-class error.
	ErrUnavailable = errors.New("idp: provider unavailable")
)

// # Models

// Identity is the IdP's view of a principal.
type Identity struct {
	// ID is the IdP-side identifier (OIDC subject).
	ID string

	Email    string
	Username string
	Enabled  bool

	// LocalUserID is the correlation attribute pointing back at the local
	// user directory row. Empty for identities this service does not manage.
	LocalUserID string

	CreatedAt time.Time
}

// NewIdentity describes an identity to be created in the realm.
type NewIdentity struct {
	Email    string
	Username string

	// Password is optional; empty for identities that will set credentials
	// through the IdP's own flows (e.g. self-signup before verification).
	Password string

	// Enabled controls whether the identity can authenticate immediately.
	// Self-signup identities start disabled until email verification.
	Enabled bool

	// LocalUserID is stored as a correlation attribute on the identity.
	LocalUserID string

	// Role is mirrored into the identity's attributes so it appears in
	// issued token claims.
	Role string
}

// TokenPair is the result of a successful authentication or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	TokenType        string
}

// Introspection is the IdP's verdict on an access token.
type Introspection struct {
	Active   bool
	Subject  string
	Email    string
	Role     string
	ClientID string
}

// # Client Contract

// Client defines the operations the identity service needs from the provider.
//
// Implementations must honor context deadlines on every call and translate
// transport failures into the package sentinel errors.
type Client interface {

	// CreateIdentity registers a new identity in the realm and returns its IdP id.
	CreateIdentity(ctx context.Context, identity NewIdentity) (string, error)

	// EnableIdentity allows the identity to authenticate.
	EnableIdentity(ctx context.Context, idpID string) error

	// DisableIdentity blocks the identity from authenticating.
	DisableIdentity(ctx context.Context, idpID string) error

	// Authenticate exchanges an identifier/secret pair for a token pair.
	Authenticate(ctx context.Context, identifier, secret string) (*TokenPair, error)

	// Refresh exchanges a refresh token for a fresh token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Revoke invalidates a refresh token. Revoking an already-revoked or
	// unknown token is not an error.
	Revoke(ctx context.Context, refreshToken string) error

	// Introspect asks the IdP whether an access token is active and for whom.
	Introspect(ctx context.Context, accessToken string) (*Introspection, error)

	// ListIdentities returns one page of realm identities. An empty result
	// signals the end of the stream.
	ListIdentities(ctx context.Context, offset, limit int) ([]Identity, error)
}
