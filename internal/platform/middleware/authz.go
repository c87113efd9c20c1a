// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/ctxutil"
	"github.com/voltgrid/voltgrid/internal/platform/respond"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// TokenVerifier defines the interface needed to verify bearer tokens in middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the IdP-backed
// token service implementation, allowing us to easily inject fakes during
// unit testing.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenStr string) (*sec.AuthClaims, error)
}

// Authenticate extracts and verifies the JWT from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, verify signature/issuer/audience/expiry via [TokenVerifier].
//  4. Inject [*sec.AuthClaims] into the request context for downstream use.
//
// Role enforcement happens exclusively in [RequireRole]; workflow services
// never re-check roles.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			claims, err := verifier.Verify(request.Context(), tokenStr)
			if err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithCaller(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireRole blocks requests whose caller does not meet the route's minimum role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It implies an
// authentication check, so protected routes mount only RequireRole.
//
// # Flow
//  1. Check if [*sec.AuthClaims] exists in context — missing means HTTP 401.
//  2. Parse the role claim strictly — an unknown role string is a 400, not a
//     silent downgrade to guest.
//  3. Compare against the declared minimum using [sec.Role.AtLeast] — HTTP 403
//     on insufficient privilege.
func RequireRole(minimum sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetCaller(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Strict Role Parsing ────────────────────────────────────────
			callerRole, err := sec.ParseRole(claims.Role)
			if err != nil {
				respond.Error(writer, request, apperr.ValidationError("Unrecognized role claim"))
				return
			}

			// ── 3. Authorization Check ────────────────────────────────────────
			if !callerRole.AtLeast(minimum) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
