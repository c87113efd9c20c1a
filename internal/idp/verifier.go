// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package idp

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// ErrTokenExpired is returned when a token's signature is valid but its
// expiry has passed. Distinct from [ErrTokenInvalid] so callers can log
// the difference; both map to 401 at the HTTP surface.
var ErrTokenExpired = errors.New("idp: token expired")

// minKeyRefreshInterval bounds how often an unknown key id may trigger a
// JWKS refetch. Attack traffic with garbage kids must not hammer the IdP.
const minKeyRefreshInterval = 1 * time.Minute

// Verifier validates IdP-issued RS256 access tokens against a cached JWKS.
//
// # Concurrency
//
// The key set is read by every request and replaced only on the rare refresh
// path. Reads take the RLock on a map that is never mutated in place; refresh
// builds a complete replacement map and swaps it under the write lock, so
// readers never observe a partially-updated set.
type Verifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client
	logger     *slog.Logger

	keysMu sync.RWMutex
	keys   map[string]*rsa.PublicKey

	// refreshMu serializes refetches; lastRefresh enforces the backoff.
	refreshMu   sync.Mutex
	lastRefresh time.Time
}

// NewVerifier constructs a Verifier that lazily loads the realm's JWKS.
//
// # Parameters
//   - jwksURL: The realm's public key set endpoint (see [HTTPClient.JWKSURL]).
//   - issuer: Expected 'iss' claim.
//   - audience: Expected 'aud' claim.
func NewVerifier(jwksURL, issuer, audience string, logger *slog.Logger) *Verifier {
	return &Verifier{
		jwksURL:    jwksURL,
		issuer:     issuer,
		audience:   audience,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// NewStaticVerifier constructs a Verifier with a fixed key set and no
// network refresh. Used in tests and for self-issued deployments where the
// public key is distributed out of band.
func NewStaticVerifier(keys map[string]*rsa.PublicKey, issuer, audience string, logger *slog.Logger) *Verifier {
	v := NewVerifier("", issuer, audience, logger)
	v.keys = keys
	v.lastRefresh = time.Now()
	return v
}

// Verify checks the signature, issuer, audience, and expiry of a bearer token.
//
// # Flow
//  1. Parse and verify against the cached key set.
//  2. If verification failed because the key id is unknown, refetch the JWKS
//     (bounded by [minKeyRefreshInterval]) and retry once.
//
// Returns [ErrTokenExpired] for an expired token and [ErrTokenInvalid] for
// anything else that fails verification.
func (v *Verifier) Verify(ctx context.Context, tokenStr string) (*sec.AuthClaims, error) {
	claims, err := v.parse(tokenStr)
	if err == nil {
		return claims, nil
	}

	// Expiry is conclusive; a new key would not change it.
	if errors.Is(err, ErrTokenExpired) {
		return nil, err
	}

	// An unknown kid may mean the IdP rotated its keys. Refresh and retry once.
	if errors.Is(err, errUnknownKeyID) {
		if refreshErr := v.refreshKeys(ctx); refreshErr != nil {
			v.logger.Warn("jwks_refresh_failed", slog.Any("error", refreshErr))
			return nil, ErrTokenInvalid
		}
		if claims, err = v.parse(tokenStr); err == nil {
			return claims, nil
		}
	}

	return nil, ErrTokenInvalid
}

// errUnknownKeyID signals that the token references a kid absent from the cache.
var errUnknownKeyID = errors.New("idp: unknown key id")

// parse verifies the token against the current key snapshot.
func (v *Verifier) parse(tokenStr string) (*sec.AuthClaims, error) {
	claims := &sec.AuthClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, errUnknownKeyID):
			return nil, errUnknownKeyID
		default:
			return nil, ErrTokenInvalid
		}
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// keyFunc resolves the verification key for a token header.
func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)

	v.keysMu.RLock()
	key, found := v.keys[kid]
	v.keysMu.RUnlock()

	if !found {
		return nil, errUnknownKeyID
	}
	return key, nil
}

// refreshKeys refetches the JWKS and swaps in a fresh key map.
func (v *Verifier) refreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return errors.New("idp: verifier has no JWKS endpoint configured")
	}

	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	// Backoff: another request may have refreshed while we waited for the
	// lock, or attack traffic may be probing with bogus kids.
	if time.Since(v.lastRefresh) < minKeyRefreshInterval {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(callCtx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("idp: build jwks request: %w", err)
	}

	response, err := v.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: jwks endpoint returned %d", ErrUnavailable, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fresh, err := parseJWKS(body)
	if err != nil {
		return err
	}

	// Copy-and-swap: readers keep the old map until the new one is complete.
	v.keysMu.Lock()
	v.keys = fresh
	v.keysMu.Unlock()
	v.lastRefresh = time.Now()

	v.logger.Info("jwks_refreshed", slog.Int("keys", len(fresh)))
	return nil
}

// parseJWKS decodes a JWKS document into a kid → RSA public key map.
//
// Only RSA signature keys are retained; other key types in the set are skipped.
func parseJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	var document struct {
		Keys []struct {
			Kty string `json:"kty"`
			Use string `json:"use"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(body, &document); err != nil {
		return nil, fmt.Errorf("idp: malformed jwks document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, jwk := range document.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}

		modulus, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			return nil, fmt.Errorf("idp: bad modulus for kid %q: %w", jwk.Kid, err)
		}
		exponent, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			return nil, fmt.Errorf("idp: bad exponent for kid %q: %w", jwk.Kid, err)
		}

		keys[jwk.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulus),
			E: int(new(big.Int).SetBytes(exponent).Int64()),
		}
	}

	if len(keys) == 0 {
		return nil, errors.New("idp: jwks document contains no usable RSA keys")
	}

	return keys, nil
}
