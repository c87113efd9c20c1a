// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package idp_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

const (
	testIssuer   = "https://idp.test/realms/voltgrid"
	testAudience = "voltgrid-identity"
	testKeyID    = "test-key-1"
)

// signedToken mints an RS256 token with the given mutations applied to a
// baseline-valid claim set.
func signedToken(t *testing.T, key *rsa.PrivateKey, mutate func(*sec.AuthClaims)) string {
	t.Helper()

	claims := &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "idp-sub-42",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
		},
		Email: "alice@example.com",
		Role:  "user",
	}
	if mutate != nil {
		mutate(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T, key *rsa.PrivateKey) *idp.Verifier {
	t.Helper()
	return idp.NewStaticVerifier(
		map[string]*rsa.PublicKey{testKeyID: &key.PublicKey},
		testIssuer,
		testAudience,
		slog.Default(),
	)
}

/*
TestVerifier_Verify exercises signature, issuer, audience, and expiry checks.
*/
func TestVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := newTestVerifier(t, key)

	t.Run("valid_token", func(t *testing.T) {
		claims, err := verifier.Verify(context.Background(), signedToken(t, key, nil))
		require.NoError(t, err)
		assert.Equal(t, "idp-sub-42", claims.Subject)
		assert.Equal(t, "alice@example.com", claims.Email)
		assert.Equal(t, "user", claims.Role)
	})

	t.Run("expired_token", func(t *testing.T) {
		token := signedToken(t, key, func(c *sec.AuthClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Minute))
		})

		_, err := verifier.Verify(context.Background(), token)
		assert.ErrorIs(t, err, idp.ErrTokenExpired)
	})

	t.Run("wrong_issuer", func(t *testing.T) {
		token := signedToken(t, key, func(c *sec.AuthClaims) {
			c.Issuer = "https://rogue.example"
		})

		_, err := verifier.Verify(context.Background(), token)
		assert.ErrorIs(t, err, idp.ErrTokenInvalid)
	})

	t.Run("wrong_audience", func(t *testing.T) {
		token := signedToken(t, key, func(c *sec.AuthClaims) {
			c.Audience = jwt.ClaimStrings{"other-service"}
		})

		_, err := verifier.Verify(context.Background(), token)
		assert.ErrorIs(t, err, idp.ErrTokenInvalid)
	})

	t.Run("garbage_token", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, idp.ErrTokenInvalid)
	})

	t.Run("unknown_signing_key", func(t *testing.T) {
		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		// Signed by a key the verifier has never seen; with no JWKS endpoint
		// configured the refresh cannot rescue it.
		_, err = verifier.Verify(context.Background(), signedToken(t, otherKey, nil))
		assert.ErrorIs(t, err, idp.ErrTokenInvalid)
	})
}
