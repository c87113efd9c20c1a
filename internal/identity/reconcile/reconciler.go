// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

/*
Package reconcile repairs drift between the identity provider and the user
directory.

The IdP is the system of record for identity fields (email) and enablement.
The reconciler periodically lists realm identities and overwrites diverging
local values with the provider's; it never deletes directory rows and never
pushes local changes back to the provider.
*/
package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
)

// pageSize is the IdP listing page requested per round trip.
const pageSize = 100

// Reconciler is the periodic drift-repair job.
type Reconciler struct {
	idp      idp.Client
	users    user.Store
	recorder audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration

	// running guards against overlapping passes when one pass outlives the
	// interval.
	running atomic.Bool
}

// New constructs a [Reconciler].
func New(idpClient idp.Client, users user.Store, recorder audit.Recorder,
	m *metrics.Metrics, logger *slog.Logger, interval time.Duration) *Reconciler {
	return &Reconciler{
		idp:      idpClient,
		users:    users,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		interval: interval,
	}
}

// Run executes reconciliation passes on the configured interval until the
// context is cancelled. The first pass starts immediately.
func (reconciler *Reconciler) Run(ctx context.Context) {
	reconciler.RunOnce(ctx)

	ticker := time.NewTicker(reconciler.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconciler.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation pass. A pass already in flight
// makes this call a no-op.
func (reconciler *Reconciler) RunOnce(ctx context.Context) {
	if !reconciler.running.CompareAndSwap(false, true) {
		reconciler.logger.Warn("reconcile pass skipped, previous still running")
		return
	}
	defer reconciler.running.Store(false)

	started := time.Now()
	repaired, failed, err := reconciler.pass(ctx)

	result := "success"
	if err != nil {
		result = "error"
		reconciler.logger.Error("reconcile pass aborted",
			slog.String("error", err.Error()))
	}
	reconciler.metrics.ObserveReconcileRun(result)

	reconciler.logger.Info("reconcile pass finished",
		slog.Int("repaired", repaired),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(started)),
	)
}

// pass pages through the realm and repairs each correlated identity. Only a
// listing failure aborts the pass; per-entity failures are logged, audited,
// and skipped.
func (reconciler *Reconciler) pass(ctx context.Context) (repaired, failed int, err error) {
	for offset := 0; ; offset += pageSize {
		identities, err := reconciler.idp.ListIdentities(ctx, offset, pageSize)
		if err != nil {
			return repaired, failed, err
		}
		if len(identities) == 0 {
			return repaired, failed, nil
		}

		for _, identity := range identities {
			account, err := reconciler.correlate(ctx, identity)
			if err != nil {
				failed++
				reconciler.logger.Warn("reconcile entity failed",
					slog.String("idp_id", identity.ID),
					slog.String("error", err.Error()),
				)
				reconciler.auditSync(ctx, identity.LocalUserID, audit.OutcomeFailure, nil)
				continue
			}
			if account == nil {
				continue
			}

			changed, err := reconciler.repair(ctx, account, identity)
			if err != nil {
				failed++
				reconciler.logger.Warn("reconcile entity failed",
					slog.String("user_id", account.ID),
					slog.String("error", err.Error()),
				)
				reconciler.auditSync(ctx, account.ID, audit.OutcomeFailure, nil)
				continue
			}
			if changed != nil {
				repaired++
				reconciler.metrics.ObserveDriftRepair()
				reconciler.auditSync(ctx, account.ID, audit.OutcomeSuccess, changed)
			}
		}
	}
}

// correlate resolves the directory row an identity belongs to. A correlation
// attribute stamped on the identity wins; identities the workflows created
// without one are resolved through the IdP subject instead. A nil account
// means the identity is not managed by this service.
func (reconciler *Reconciler) correlate(ctx context.Context, identity idp.Identity) (*user.User, error) {
	if identity.LocalUserID != "" {
		return reconciler.users.FindByID(ctx, identity.LocalUserID)
	}

	account, err := reconciler.users.FindByIdPID(ctx, identity.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// repair compares one identity against its directory row and applies the
// provider's values. A nil map reports no drift.
func (reconciler *Reconciler) repair(ctx context.Context, account *user.User, identity idp.Identity) (map[string]any, error) {
	changed := map[string]any{}
	if identity.Email != "" && account.Email != identity.Email {
		changed[user.FieldEmail] = identity.Email
		account.Email = identity.Email
	}
	if account.IsActive != identity.Enabled {
		changed[user.FieldIsActive] = identity.Enabled
		account.IsActive = identity.Enabled
	}
	if len(changed) == 0 {
		return nil, nil
	}

	if err := reconciler.users.Update(ctx, account); err != nil {
		return nil, err
	}
	return changed, nil
}

func (reconciler *Reconciler) auditSync(ctx context.Context, resource, outcome string, changed map[string]any) {
	_ = reconciler.recorder.Append(ctx, audit.Entry{
		Actor:    audit.ActorSystem,
		Action:   audit.ActionReconcileSync,
		Resource: resource,
		Outcome:  outcome,
		Detail:   changed,
	})
}

// isNotFound reports whether err is the taxonomy's NotFound.
func isNotFound(err error) bool {
	appErr := apperr.As(err)
	return appErr != nil && appErr.HTTPStatus == 404
}
