// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltgrid/voltgrid/internal/platform/dberr"
)

// PostgresStore implements the [Store] interface on identity.registration.
//
// Status transitions are expressed as conditional UPDATEs on the current
// status, so the database serializes racing verifies and resends.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL implementation of the registration [Store].
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const registrationColumns = `
	id, email, username, display_name, idp_id, token_digest, status,
	resend_count, last_resend_at, request_ip, user_agent,
	expires_at, created_at, updated_at`

// scanRegistration hydrates one row into a Registration.
func scanRegistration(row pgx.Row) (*Registration, error) {
	r := &Registration{}
	err := row.Scan(
		&r.ID,
		&r.Email,
		&r.Username,
		&r.DisplayName,
		&r.IdPID,
		&r.TokenDigest,
		&r.Status,
		&r.ResendCount,
		&r.LastResend,
		&r.RequestIP,
		&r.UserAgent,
		&r.ExpiresAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (store *PostgresStore) Create(ctx context.Context, registration *Registration) error {
	query := `
		INSERT INTO identity.registration (
			id, email, username, display_name, idp_id, token_digest, status,
			resend_count, request_ip, user_agent, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := store.pool.QueryRow(ctx, query,
		registration.ID,
		registration.Email,
		registration.Username,
		registration.DisplayName,
		registration.IdPID,
		registration.TokenDigest,
		registration.Status,
		registration.ResendCount,
		registration.RequestIP,
		registration.UserAgent,
		registration.ExpiresAt,
	).Scan(&registration.CreatedAt, &registration.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres_registration_create_failed: %w", dberr.Wrap(err, "registration"))
	}
	return nil
}

func (store *PostgresStore) FindByTokenDigest(ctx context.Context, digest string) (*Registration, error) {
	query := `SELECT` + registrationColumns + `
		FROM identity.registration
		WHERE token_digest = $1`

	found, err := scanRegistration(store.pool.QueryRow(ctx, query, digest))
	if err != nil {
		return nil, dberr.Wrap(err, "registration")
	}
	return found, nil
}

func (store *PostgresStore) FindPendingByEmail(ctx context.Context, email string) (*Registration, error) {
	query := `SELECT` + registrationColumns + `
		FROM identity.registration
		WHERE email = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	found, err := scanRegistration(store.pool.QueryRow(ctx, query, email, StatusPending))
	if err != nil {
		return nil, dberr.Wrap(err, "registration")
	}
	return found, nil
}

func (store *PostgresStore) MarkVerified(ctx context.Context, id string) (bool, error) {
	return store.transition(ctx, id, StatusPending, StatusVerified)
}

func (store *PostgresStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	return store.transition(ctx, id, StatusPending, StatusExpired)
}

// transition performs one compare-and-set status flip.
func (store *PostgresStore) transition(ctx context.Context, id, from, to string) (bool, error) {
	query := `
		UPDATE identity.registration
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	tag, err := store.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("postgres_registration_transition_failed: %w", dberr.Wrap(err, "registration"))
	}
	return tag.RowsAffected() == 1, nil
}

func (store *PostgresStore) RotateToken(ctx context.Context, id, digest string, expiresAt time.Time) error {
	query := `
		UPDATE identity.registration
		SET token_digest = $2, expires_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4`

	tag, err := store.pool.Exec(ctx, query, id, digest, expiresAt, StatusPending)
	if err != nil {
		return fmt.Errorf("postgres_registration_rotate_failed: %w", dberr.Wrap(err, "registration"))
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, "registration")
	}
	return nil
}

func (store *PostgresStore) RecordResend(ctx context.Context, id string, maxResends int, cooldown time.Duration) (bool, error) {
	query := `
		UPDATE identity.registration
		SET resend_count = resend_count + 1, last_resend_at = now(), updated_at = now()
		WHERE id = $1
		  AND status = $2
		  AND resend_count < $3
		  AND (last_resend_at IS NULL OR last_resend_at <= now() - make_interval(secs => $4))`

	tag, err := store.pool.Exec(ctx, query, id, StatusPending, maxResends, cooldown.Seconds())
	if err != nil {
		return false, fmt.Errorf("postgres_registration_resend_failed: %w", dberr.Wrap(err, "registration"))
	}
	return tag.RowsAffected() == 1, nil
}
