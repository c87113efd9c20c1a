// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Request budget for any single IdP call. The surrounding request context may
// impose a tighter deadline; this is the hard ceiling.
const requestTimeout = 10 * time.Second

// attributeLocalUserID is the identity attribute carrying the local user
// correlation id. The reconciler keys on it.
const attributeLocalUserID = "localUserId"

// attributeRole mirrors the platform role into the identity so the IdP can
// embed it in token claims.
const attributeRole = "role"

// HTTPClient implements [Client] against a realm-scoped OIDC provider that
// exposes the standard token/revocation/introspection endpoints plus an
// admin users API.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	logger       *slog.Logger

	// Service-account token for admin API calls, cached until shortly
	// before expiry.
	adminMu          sync.Mutex
	adminToken       string
	adminTokenExpiry time.Time
}

// NewHTTPClient constructs a realm client.
//
// # Parameters
//   - baseURL: Provider root, e.g. "https://idp.voltgrid.io".
//   - realm: Realm/tenant name within the provider.
//   - clientID, clientSecret: Confidential client credentials. The client
//     must have realm user-management service roles for the admin API.
func NewHTTPClient(baseURL, realm, clientID, clientSecret string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient:   &http.Client{Timeout: requestTimeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
	}
}

// # Endpoint Helpers

func (c *HTTPClient) realmURL(suffix string) string {
	return fmt.Sprintf("%s/realms/%s%s", c.baseURL, c.realm, suffix)
}

func (c *HTTPClient) adminURL(suffix string) string {
	return fmt.Sprintf("%s/admin/realms/%s%s", c.baseURL, c.realm, suffix)
}

// JWKSURL returns the realm's public key set endpoint, consumed by [Verifier].
func (c *HTTPClient) JWKSURL() string {
	return c.realmURL("/protocol/openid-connect/certs")
}

// # Token Endpoint Operations

// Authenticate performs a resource-owner password grant.
func (c *HTTPClient) Authenticate(ctx context.Context, identifier, secret string) (*TokenPair, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {identifier},
		"password":   {secret},
	}
	return c.tokenRequest(ctx, form, ErrInvalidCredentials)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, form, ErrTokenInvalid)
}

// Revoke invalidates a refresh token. The OAuth2 revocation endpoint treats
// unknown tokens as success, which gives logout its idempotency.
func (c *HTTPClient) Revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	c.addClientAuth(form)

	status, _, err := c.postForm(ctx, c.realmURL("/protocol/openid-connect/revoke"), form)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("%w: revocation endpoint returned %d", ErrUnavailable, status)
	}
	// 200 for both live and already-revoked tokens per RFC 7009.
	return nil
}

// Introspect asks the provider whether an access token is active.
func (c *HTTPClient) Introspect(ctx context.Context, accessToken string) (*Introspection, error) {
	form := url.Values{"token": {accessToken}}
	c.addClientAuth(form)

	status, body, err := c.postForm(ctx, c.realmURL("/protocol/openid-connect/token/introspect"), form)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: introspection endpoint returned %d", ErrUnavailable, status)
	}

	var payload struct {
		Active   bool   `json:"active"`
		Sub      string `json:"sub"`
		Email    string `json:"email"`
		Role     string `json:"role"`
		ClientID string `json:"client_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("idp: malformed introspection response: %w", err)
	}

	return &Introspection{
		Active:   payload.Active,
		Subject:  payload.Sub,
		Email:    payload.Email,
		Role:     payload.Role,
		ClientID: payload.ClientID,
	}, nil
}

// tokenRequest posts to the token endpoint and maps grant rejections onto
// the given sentinel.
func (c *HTTPClient) tokenRequest(ctx context.Context, form url.Values, rejection error) (*TokenPair, error) {
	c.addClientAuth(form)

	status, body, err := c.postForm(ctx, c.realmURL("/protocol/openid-connect/token"), form)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
		// fall through to decode
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		// invalid_grant covers wrong credentials and expired/revoked tokens.
		return nil, rejection
	case status >= 500:
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrUnavailable, status)
	default:
		return nil, fmt.Errorf("idp: unexpected token endpoint status %d", status)
	}

	var payload struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int    `json:"expires_in"`
		RefreshExpiresIn int    `json:"refresh_expires_in"`
		TokenType        string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("idp: malformed token response: %w", err)
	}

	return &TokenPair{
		AccessToken:      payload.AccessToken,
		RefreshToken:     payload.RefreshToken,
		ExpiresIn:        time.Duration(payload.ExpiresIn) * time.Second,
		RefreshExpiresIn: time.Duration(payload.RefreshExpiresIn) * time.Second,
		TokenType:        payload.TokenType,
	}, nil
}

// # Admin API Operations

// identityRepresentation is the provider's wire format for a realm user.
type identityRepresentation struct {
	ID               string              `json:"id,omitempty"`
	Username         string              `json:"username"`
	Email            string              `json:"email"`
	Enabled          bool                `json:"enabled"`
	EmailVerified    bool                `json:"emailVerified"`
	Attributes       map[string][]string `json:"attributes,omitempty"`
	CreatedTimestamp int64               `json:"createdTimestamp,omitempty"`
	Credentials      []credentialRep     `json:"credentials,omitempty"`
}

type credentialRep struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// CreateIdentity registers a new identity and returns the provider-assigned id.
func (c *HTTPClient) CreateIdentity(ctx context.Context, identity NewIdentity) (string, error) {
	rep := identityRepresentation{
		Username:      identity.Username,
		Email:         identity.Email,
		Enabled:       identity.Enabled,
		EmailVerified: identity.Enabled,
		Attributes:    map[string][]string{},
	}
	if identity.LocalUserID != "" {
		rep.Attributes[attributeLocalUserID] = []string{identity.LocalUserID}
	}
	if identity.Role != "" {
		rep.Attributes[attributeRole] = []string{identity.Role}
	}
	if identity.Password != "" {
		rep.Credentials = []credentialRep{{Type: "password", Value: identity.Password}}
	}

	status, headers, body, err := c.adminRequest(ctx, http.MethodPost, c.adminURL("/users"), rep)
	if err != nil {
		return "", err
	}

	switch status {
	case http.StatusCreated:
		// Provider returns the new id in the Location header.
		location := headers.Get("Location")
		if idx := strings.LastIndex(location, "/"); idx >= 0 && idx+1 < len(location) {
			return location[idx+1:], nil
		}
		return "", fmt.Errorf("idp: created identity but no id in location %q", location)
	case http.StatusConflict:
		return "", ErrConflict
	default:
		if status >= 500 {
			return "", fmt.Errorf("%w: admin users endpoint returned %d", ErrUnavailable, status)
		}
		return "", fmt.Errorf("idp: unexpected create identity status %d: %s", status, truncate(body))
	}
}

// EnableIdentity allows the identity to authenticate.
func (c *HTTPClient) EnableIdentity(ctx context.Context, idpID string) error {
	return c.setEnabled(ctx, idpID, true)
}

// DisableIdentity blocks the identity from authenticating.
func (c *HTTPClient) DisableIdentity(ctx context.Context, idpID string) error {
	return c.setEnabled(ctx, idpID, false)
}

func (c *HTTPClient) setEnabled(ctx context.Context, idpID string, enabled bool) error {
	payload := map[string]any{"enabled": enabled, "emailVerified": enabled}

	status, _, body, err := c.adminRequest(ctx, http.MethodPut, c.adminURL("/users/"+url.PathEscape(idpID)), payload)
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusNoContent || status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return fmt.Errorf("%w: admin user update returned %d", ErrUnavailable, status)
	default:
		return fmt.Errorf("idp: unexpected enable/disable status %d: %s", status, truncate(body))
	}
}

// ListIdentities returns one page of realm identities.
func (c *HTTPClient) ListIdentities(ctx context.Context, offset, limit int) ([]Identity, error) {
	endpoint := c.adminURL("/users") + "?first=" + strconv.Itoa(offset) + "&max=" + strconv.Itoa(limit)

	status, _, body, err := c.adminRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if status >= 500 {
			return nil, fmt.Errorf("%w: admin user list returned %d", ErrUnavailable, status)
		}
		return nil, fmt.Errorf("idp: unexpected list status %d", status)
	}

	var reps []identityRepresentation
	if err := json.Unmarshal(body, &reps); err != nil {
		return nil, fmt.Errorf("idp: malformed user list response: %w", err)
	}

	identities := make([]Identity, 0, len(reps))
	for _, rep := range reps {
		identity := Identity{
			ID:       rep.ID,
			Email:    rep.Email,
			Username: rep.Username,
			Enabled:  rep.Enabled,
		}
		if values := rep.Attributes[attributeLocalUserID]; len(values) > 0 {
			identity.LocalUserID = values[0]
		}
		if rep.CreatedTimestamp > 0 {
			identity.CreatedAt = time.UnixMilli(rep.CreatedTimestamp)
		}
		identities = append(identities, identity)
	}

	return identities, nil
}

// # Transport Plumbing

// addClientAuth attaches the confidential client credentials to a form.
func (c *HTTPClient) addClientAuth(form url.Values) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
}

// postForm executes a form POST with the call-level timeout applied.
func (c *HTTPClient) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("idp: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, c.transportError(err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return 0, nil, c.transportError(err)
	}

	return response.StatusCode, body, nil
}

// adminRequest executes a JSON admin API request with a fresh service-account token.
func (c *HTTPClient) adminRequest(ctx context.Context, method, endpoint string, payload any) (int, http.Header, []byte, error) {
	token, err := c.adminAccessToken(ctx)
	if err != nil {
		return 0, nil, nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("idp: encode admin payload: %w", err)
		}
		bodyReader = strings.NewReader(string(encoded))
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(callCtx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("idp: build admin request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, nil, c.transportError(err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return 0, nil, nil, c.transportError(err)
	}

	return response.StatusCode, response.Header, body, nil
}

// adminAccessToken returns a cached service-account token, fetching a new one
// via client_credentials when the cache is empty or stale.
func (c *HTTPClient) adminAccessToken(ctx context.Context) (string, error) {
	c.adminMu.Lock()
	defer c.adminMu.Unlock()

	// 30s of slack avoids using a token that expires mid-request.
	if c.adminToken != "" && time.Until(c.adminTokenExpiry) > 30*time.Second {
		return c.adminToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	pair, err := c.tokenRequest(ctx, form, ErrInvalidCredentials)
	if err != nil {
		return "", fmt.Errorf("idp: service account token: %w", err)
	}

	c.adminToken = pair.AccessToken
	c.adminTokenExpiry = time.Now().Add(pair.ExpiresIn)

	c.logger.Debug("idp_admin_token_refreshed",
		slog.Duration("expires_in", pair.ExpiresIn),
	)

	return c.adminToken, nil
}

// transportError classifies network-level failures as provider unavailability.
func (c *HTTPClient) transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// truncate caps a response body for error messages.
func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
