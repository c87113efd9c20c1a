// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltgrid/voltgrid/pkg/ids"
)

// PostgresRecorder implements [Recorder] on the identity.audit_log table.
//
// The table has no UPDATE or DELETE path in this codebase; rows only
// accumulate.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecorder creates a new PostgreSQL-backed audit recorder.
func NewRecorder(pool *pgxpool.Pool, logger *slog.Logger) *PostgresRecorder {
	return &PostgresRecorder{pool: pool, logger: logger}
}

/*
Append persists a single audit entry.

Description: Assigns the entry id and timestamp if unset, serializes the
structured detail to JSONB, and inserts the row. Persistence failures are
logged and returned but must not abort the caller's primary operation.

Parameters:
  - ctx: context.Context
  - entry: Entry

Returns:
  - error: Persistence failures
*/
func (recorder *PostgresRecorder) Append(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO identity.audit_log (
			id, actor, action, resource, outcome, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if entry.ID == "" {
		entry.ID = ids.New(ids.PrefixAudit)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	detail := []byte("{}")
	if entry.Detail != nil {
		encoded, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("postgres_audit_encode_detail_failed: %w", err)
		}
		detail = encoded
	}

	_, err := recorder.pool.Exec(ctx, query,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.Resource,
		entry.Outcome,
		detail,
		entry.CreatedAt,
	)

	if err != nil {
		recorder.logger.Error("audit_append_failed",
			slog.String("action", entry.Action),
			slog.String("resource", entry.Resource),
			slog.Any("error", err),
		)
		return fmt.Errorf("postgres_audit_append_failed: %w", err)
	}

	return nil
}
