// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package invitation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltgrid/voltgrid/internal/platform/dberr"
)

// PostgresStore implements the [Store] interface on identity.invitation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL implementation of the invitation [Store].
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const invitationColumns = `
	id, email, role, network_id, station_id, invited_by, token_digest,
	status, accepted_by, accepted_at, expires_at, created_at, updated_at`

// scanInvitation hydrates one row into an Invitation.
func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	err := row.Scan(
		&inv.ID,
		&inv.Email,
		&inv.Role,
		&inv.NetworkID,
		&inv.StationID,
		&inv.InvitedBy,
		&inv.TokenDigest,
		&inv.Status,
		&inv.AcceptedBy,
		&inv.AcceptedAt,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (store *PostgresStore) Create(ctx context.Context, invitation *Invitation) error {
	query := `
		INSERT INTO identity.invitation (
			id, email, role, network_id, station_id, invited_by,
			token_digest, status, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := store.pool.QueryRow(ctx, query,
		invitation.ID,
		invitation.Email,
		invitation.Role,
		invitation.NetworkID,
		invitation.StationID,
		invitation.InvitedBy,
		invitation.TokenDigest,
		invitation.Status,
		invitation.ExpiresAt,
	).Scan(&invitation.CreatedAt, &invitation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres_invitation_create_failed: %w", dberr.Wrap(err, "invitation"))
	}
	return nil
}

func (store *PostgresStore) FindByID(ctx context.Context, id string) (*Invitation, error) {
	query := `SELECT` + invitationColumns + `
		FROM identity.invitation
		WHERE id = $1`

	found, err := scanInvitation(store.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "invitation")
	}
	return found, nil
}

func (store *PostgresStore) FindByTokenDigest(ctx context.Context, digest string) (*Invitation, error) {
	query := `SELECT` + invitationColumns + `
		FROM identity.invitation
		WHERE token_digest = $1`

	found, err := scanInvitation(store.pool.QueryRow(ctx, query, digest))
	if err != nil {
		return nil, dberr.Wrap(err, "invitation")
	}
	return found, nil
}

func (store *PostgresStore) Claim(ctx context.Context, id string) (bool, error) {
	return store.transition(ctx, id, StatusPending, StatusAccepted)
}

func (store *PostgresStore) Release(ctx context.Context, id string) error {
	// Compensation path; losing this race means another accept completed.
	_, err := store.transition(ctx, id, StatusAccepted, StatusPending)
	return err
}

func (store *PostgresStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	return store.transition(ctx, id, StatusPending, StatusExpired)
}

func (store *PostgresStore) Cancel(ctx context.Context, id string) (bool, error) {
	return store.transition(ctx, id, StatusPending, StatusCancelled)
}

// transition performs one compare-and-set status flip.
func (store *PostgresStore) transition(ctx context.Context, id, from, to string) (bool, error) {
	query := `
		UPDATE identity.invitation
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	tag, err := store.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("postgres_invitation_transition_failed: %w", dberr.Wrap(err, "invitation"))
	}
	return tag.RowsAffected() == 1, nil
}

func (store *PostgresStore) RecordAcceptance(ctx context.Context, id, userID string) error {
	query := `
		UPDATE identity.invitation
		SET accepted_by = $2, accepted_at = now(), updated_at = now()
		WHERE id = $1`

	if _, err := store.pool.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("postgres_invitation_acceptance_failed: %w", dberr.Wrap(err, "invitation"))
	}
	return nil
}

func (store *PostgresStore) List(ctx context.Context, offset, limit int) ([]Invitation, error) {
	query := `SELECT` + invitationColumns + `
		FROM identity.invitation
		ORDER BY created_at DESC
		OFFSET $1 LIMIT $2`

	rows, err := store.pool.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_invitation_list_failed: %w", dberr.Wrap(err, "invitation"))
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_invitation_scan_failed: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}
