// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package user

import "context"

// # User Data Access

// Store defines the data access contract for the local user directory.
//
// All lookups exclude soft-deleted rows. Email and username comparisons are
// against the canonical (lowercased) form produced by pkg/normalize.
type Store interface {

	/*
		Create persists a brand-new user row.

		Parameters:
		  - ctx: context.Context
		  - user: *User

		Returns:
		  - error: Conflict on duplicate email/username, or persistence failures
	*/
	Create(ctx context.Context, user *User) error

	/*
		FindByID returns the user with the given local id.

		Parameters:
		  - ctx: context.Context
		  - id: string (USR-...)

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByID(ctx context.Context, id string) (*User, error)

	/*
		FindByEmail returns the user with the given canonical email.
	*/
	FindByEmail(ctx context.Context, email string) (*User, error)

	/*
		FindByUsername returns the user with the given canonical username.
	*/
	FindByUsername(ctx context.Context, username string) (*User, error)

	/*
		FindByIdPID returns the user correlated with the given IdP subject.

		A miss here during login indicates drift between the directory and
		the IdP; it is repaired by the reconciliation job, never inline.
	*/
	FindByIdPID(ctx context.Context, idpID string) (*User, error)

	/*
		Update persists changes to the mutable fields (email, username,
		display name, role, scope, verified, active).
	*/
	Update(ctx context.Context, user *User) error

	/*
		UpdateLastLogin stamps the user's last successful login time.
	*/
	UpdateLastLogin(ctx context.Context, id string) error

	/*
		SoftDelete marks the account as deleted without removing the row.
	*/
	SoftDelete(ctx context.Context, id string) error
}
