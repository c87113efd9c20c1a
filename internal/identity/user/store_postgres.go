// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package user

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltgrid/voltgrid/internal/platform/dberr"
)

// PostgresStore implements the [Store] interface on identity.user_account.
//
// # Error Mapping
//
// Storage-specific errors (pgx.ErrNoRows, unique violations) are mapped to
// domain-friendly apperr values via dberr to avoid leaking storage details.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL implementation of the user [Store].
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `
	id, idp_id, email, username, display_name, role, network_id, station_id,
	is_verified, is_active, last_login_at, created_at, updated_at`

// scanUser hydrates one row into a User.
func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID,
		&u.IdPID,
		&u.Email,
		&u.Username,
		&u.DisplayName,
		&u.Role,
		&u.NetworkID,
		&u.StationID,
		&u.IsVerified,
		&u.IsActive,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

/*
Create persists a new user row.

Description: Initializes audit timestamps if unset. Duplicate email/username
surfaces as a Conflict through the unique indexes.

Parameters:
  - ctx: context.Context
  - user: *User

Returns:
  - error: apperr.Conflict or persistence failures
*/
func (store *PostgresStore) Create(ctx context.Context, user *User) error {
	const query = `
		INSERT INTO identity.user_account (
			id, idp_id, email, username, display_name, role, network_id, station_id,
			is_verified, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := store.pool.Exec(ctx, query,
		user.ID,
		user.IdPID,
		user.Email,
		user.Username,
		user.DisplayName,
		user.Role,
		user.NetworkID,
		user.StationID,
		user.IsVerified,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "User")
	}

	return nil
}

/*
FindByID retrieves a user row by its local identifier.
*/
func (store *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM identity.user_account
		WHERE id = $1 AND deleted_at IS NULL`

	user, err := scanUser(store.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

/*
FindByEmail retrieves a user row by canonical email address.
*/
func (store *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM identity.user_account
		WHERE email = $1 AND deleted_at IS NULL`

	user, err := scanUser(store.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

/*
FindByUsername retrieves a user row by canonical username.
*/
func (store *PostgresStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM identity.user_account
		WHERE username = $1 AND deleted_at IS NULL`

	user, err := scanUser(store.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

/*
FindByIdPID retrieves the user correlated with an IdP subject.
*/
func (store *PostgresStore) FindByIdPID(ctx context.Context, idpID string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM identity.user_account
		WHERE idp_id = $1 AND deleted_at IS NULL`

	user, err := scanUser(store.pool.QueryRow(ctx, query, idpID))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

/*
Update persists the mutable directory fields.

Description: Synchronizes the in-memory user state with the database,
refreshing the updated_at timestamp.
*/
func (store *PostgresStore) Update(ctx context.Context, user *User) error {
	const query = `
		UPDATE identity.user_account
		SET email = $2, username = $3, display_name = $4, role = $5,
		    network_id = $6, station_id = $7, is_verified = $8, is_active = $9,
		    updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL`

	user.UpdatedAt = time.Now()
	_, err := store.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.DisplayName,
		user.Role,
		user.NetworkID,
		user.StationID,
		user.IsVerified,
		user.IsActive,
		user.UpdatedAt,
	)

	if err != nil {
		return dberr.Wrap(err, "User")
	}

	return nil
}

/*
UpdateLastLogin stamps the last successful login time.
*/
func (store *PostgresStore) UpdateLastLogin(ctx context.Context, id string) error {
	const query = `
		UPDATE identity.user_account
		SET last_login_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`

	if _, err := store.pool.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("postgres_user_store_last_login_failed: %w", err)
	}
	return nil
}

/*
SoftDelete marks a user account as deleted by setting deleted_at.

Description: Retention-friendly deletion; the row and its audit trail remain.
*/
func (store *PostgresStore) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE identity.user_account SET deleted_at = $2 WHERE id = $1`
	if _, err := store.pool.Exec(ctx, query, id, time.Now()); err != nil {
		return fmt.Errorf("postgres_user_store_soft_delete_failed: %w", err)
	}
	return nil
}
