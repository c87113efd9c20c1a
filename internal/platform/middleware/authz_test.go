// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/platform/ctxutil"
	"github.com/voltgrid/voltgrid/internal/platform/middleware"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// fakeVerifier returns a fixed claims/error pair for any token.
type fakeVerifier struct {
	claims *sec.AuthClaims
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*sec.AuthClaims, error) {
	return f.claims, f.err
}

func claimsWithRole(role string) *sec.AuthClaims {
	return &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "idp-sub-1"},
		Email:            "alice@example.com",
		Role:             role,
	}
}

// okHandler records whether the request made it through the chain.
func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

/*
TestAuthenticate verifies bearer extraction and claim injection.
*/
func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		verifier   *fakeVerifier
		wantStatus int
		wantCalled bool
	}{
		{"no_header_is_anonymous", "", &fakeVerifier{}, http.StatusOK, true},
		{"malformed_header", "Token abc", &fakeVerifier{}, http.StatusUnauthorized, false},
		{"invalid_token", "Bearer bad", &fakeVerifier{err: errors.New("boom")}, http.StatusUnauthorized, false},
		{"valid_token", "Bearer good", &fakeVerifier{claims: claimsWithRole("user")}, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := middleware.Authenticate(tt.verifier)(okHandler(&called))

			request := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}

/*
TestAuthenticate_InjectsClaims verifies downstream handlers see the caller.
*/
func TestAuthenticate_InjectsClaims(t *testing.T) {
	verifier := &fakeVerifier{claims: claimsWithRole("operator")}

	var seen *sec.AuthClaims
	handler := middleware.Authenticate(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxutil.GetCaller(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer good")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	require.NotNil(t, seen)
	assert.Equal(t, "operator", seen.Role)
	assert.Equal(t, "idp-sub-1", seen.Subject)
}

/*
TestRequireRole verifies the single role-enforcement point:
401 without claims, 400 on an unparseable role, 403 below the minimum.
*/
func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		claims     *sec.AuthClaims
		minimum    sec.Role
		wantStatus int
	}{
		{"anonymous_is_401", nil, sec.RoleUser, http.StatusUnauthorized},
		{"garbage_role_is_400", claimsWithRole("root"), sec.RoleUser, http.StatusBadRequest},
		{"below_minimum_is_403", claimsWithRole("user"), sec.RoleAdmin, http.StatusForbidden},
		{"exact_minimum_passes", claimsWithRole("operator"), sec.RoleOperator, http.StatusOK},
		{"above_minimum_passes", claimsWithRole("admin"), sec.RoleOperator, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := middleware.RequireRole(tt.minimum)(okHandler(&called))

			request := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.claims != nil {
				request = request.WithContext(ctxutil.WithCaller(request.Context(), tt.claims))
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
		})
	}
}
