// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package user implements the local user directory.

It owns the User row: lookup, creation, status transitions, and last-login
bookkeeping. Registration and invitation workflows hand ownership of a new
User to this package at the moment of creation; credentials never live here —
they belong to the external identity provider.

# Architecture

  - Directory: Business rules (scoped-role invariant, soft delete, admin ops).
  - Store: Abstracted persistence contract implemented on PostgreSQL.
*/
package user

import (
	"time"

	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// # Domain Entities

// User represents an account in the local directory, correlated with an
// identity at the IdP via IdPID.
type User struct {
	// ID is the prefixed local identifier (USR-...).
	ID string `json:"id"`

	// IdPID is the OIDC subject of the correlated external identity.
	IdPID string `json:"-"`

	Email       string   `json:"email"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Role        sec.Role `json:"role"`

	// NetworkID scopes partner accounts to one charging network.
	NetworkID string `json:"network_id,omitempty"`

	// StationID scopes operator accounts to one station.
	StationID string `json:"station_id,omitempty"`

	IsVerified bool `json:"is_verified"`
	IsActive   bool `json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Summary is the minimal user projection returned with session responses.
type Summary struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Role     sec.Role `json:"role"`
}

// Summarize projects the user onto its session summary.
func (u *User) Summarize() Summary {
	return Summary{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
	}
}

// # Field Identifiers

// Field names for validation and identity mapping in the user domain.
const (
	FieldEmail       = "email"
	FieldUsername    = "username"
	FieldDisplayName = "display_name"
	FieldRole        = "role"
	FieldNetworkID   = "network_id"
	FieldStationID   = "station_id"
	FieldIsActive    = "is_active"
)
