// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

// Package sec provides security primitives shared across the identity service:
// the closed role enum, verified token claims, and opaque token generation.
//
// # Architecture
//
// This package isolates security-sensitive types from the domain logic. The
// actual verification of IdP-issued tokens lives in internal/idp; sec only
// defines what a verified token means to the rest of the application.
package sec

import "github.com/golang-jwt/jwt/v5"

// AuthClaims represents the payload of a verified IdP-issued access token.
//
// # Why custom claims?
//
// By reading the subject, email, and role directly from the JWT, the access
// control middleware can enforce role policy WITHOUT querying the database on
// every single API request. The local user row is only loaded by handlers
// that actually need it.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Email is the identity's email address as asserted by the IdP.
	Email string `json:"email,omitempty"`

	// Role is the raw role claim. Parse with [ParseRole] before use.
	Role string `json:"role"`

	// NetworkID scopes partner roles to a single charging network.
	NetworkID string `json:"network_id,omitempty"`

	// StationID scopes operator roles to a single station.
	StationID string `json:"station_id,omitempty"`
}
