// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/reconcile"
	"github.com/voltgrid/voltgrid/internal/identity/registration"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// # Fakes

type fakeIdP struct {
	idp.Client

	identities []idp.Identity
	listErr    error
}

func (f *fakeIdP) ListIdentities(_ context.Context, offset, limit int) ([]idp.Identity, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.identities) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.identities) {
		end = len(f.identities)
	}
	return f.identities[offset:end], nil
}

func (f *fakeIdP) CreateIdentity(_ context.Context, identity idp.NewIdentity) (string, error) {
	id := fmt.Sprintf("ext-%d", len(f.identities)+1)
	f.identities = append(f.identities, idp.Identity{
		ID:          id,
		Email:       identity.Email,
		Username:    identity.Username,
		Enabled:     identity.Enabled,
		LocalUserID: identity.LocalUserID,
	})
	return id, nil
}

func (f *fakeIdP) EnableIdentity(_ context.Context, idpID string) error {
	for i := range f.identities {
		if f.identities[i].ID == idpID {
			f.identities[i].Enabled = true
		}
	}
	return nil
}

type fakeUserStore struct {
	rows      map[string]*user.User
	updateErr map[string]error
	updates   []string
}

func newFakeUserStore(users ...*user.User) *fakeUserStore {
	s := &fakeUserStore{
		rows:      make(map[string]*user.User),
		updateErr: make(map[string]error),
	}
	for _, u := range users {
		s.rows[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) Create(_ context.Context, u *user.User) error {
	s.rows[u.ID] = u
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*user.User, error) {
	if u, ok := s.rows[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByEmail(context.Context, string) (*user.User, error) {
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByUsername(context.Context, string) (*user.User, error) {
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByIdPID(_ context.Context, idpID string) (*user.User, error) {
	for _, u := range s.rows {
		if u.IdPID == idpID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) Update(_ context.Context, u *user.User) error {
	if err := s.updateErr[u.ID]; err != nil {
		return err
	}
	s.rows[u.ID] = u
	s.updates = append(s.updates, u.ID)
	return nil
}

func (s *fakeUserStore) UpdateLastLogin(context.Context, string) error { return nil }

func (s *fakeUserStore) SoftDelete(_ context.Context, id string) error {
	delete(s.rows, id)
	return nil
}

type memoryRecorder struct {
	entries []audit.Entry
}

func (r *memoryRecorder) Append(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

type fakeRegistrationStore struct {
	rows map[string]*registration.Registration
}

func newFakeRegistrationStore() *fakeRegistrationStore {
	return &fakeRegistrationStore{rows: make(map[string]*registration.Registration)}
}

func (s *fakeRegistrationStore) Create(_ context.Context, r *registration.Registration) error {
	clone := *r
	s.rows[r.ID] = &clone
	return nil
}

func (s *fakeRegistrationStore) FindByTokenDigest(_ context.Context, digest string) (*registration.Registration, error) {
	for _, r := range s.rows {
		if r.TokenDigest == digest {
			clone := *r
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("registration")
}

func (s *fakeRegistrationStore) FindPendingByEmail(_ context.Context, email string) (*registration.Registration, error) {
	for _, r := range s.rows {
		if r.Email == email && r.Status == registration.StatusPending {
			clone := *r
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("registration")
}

func (s *fakeRegistrationStore) MarkVerified(_ context.Context, id string) (bool, error) {
	r, ok := s.rows[id]
	if !ok || r.Status != registration.StatusPending {
		return false, nil
	}
	r.Status = registration.StatusVerified
	return true, nil
}

func (s *fakeRegistrationStore) MarkExpired(_ context.Context, id string) (bool, error) {
	r, ok := s.rows[id]
	if !ok || r.Status != registration.StatusPending {
		return false, nil
	}
	r.Status = registration.StatusExpired
	return true, nil
}

func (s *fakeRegistrationStore) RotateToken(_ context.Context, id, digest string, expiresAt time.Time) error {
	r, ok := s.rows[id]
	if !ok {
		return apperr.NotFound("registration")
	}
	r.TokenDigest = digest
	r.ExpiresAt = expiresAt
	return nil
}

func (s *fakeRegistrationStore) RecordResend(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

type fakeNotifier struct {
	tokens []string
}

func (f *fakeNotifier) SendVerification(_ context.Context, _, _, token string, _ time.Time) error {
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeNotifier) SendInvitation(context.Context, string, string, string, time.Time) error {
	return nil
}

// # Harness

func newReconciler(idpClient *fakeIdP, users *fakeUserStore, recorder *memoryRecorder) *reconcile.Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return reconcile.New(idpClient, users, recorder,
		metrics.New(prometheus.NewRegistry()), logger, time.Minute)
}

func localUser(id, email string, active bool) *user.User {
	return &user.User{
		ID:         id,
		IdPID:      "ext-" + id,
		Email:      email,
		Role:       sec.RoleUser,
		IsVerified: true,
		IsActive:   active,
	}
}

// # Tests

/*
TestRunOnce_RepairsDriftedFields checks that diverging email and enablement
take the provider's values, and that an audit entry records each repair.
*/
func TestRunOnce_RepairsDriftedFields(t *testing.T) {
	users := newFakeUserStore(
		localUser("USR-1", "old@example.com", true),
		localUser("USR-2", "same@example.com", true),
	)
	provider := &fakeIdP{identities: []idp.Identity{
		{ID: "ext-USR-1", Email: "new@example.com", Enabled: false, LocalUserID: "USR-1"},
		{ID: "ext-USR-2", Email: "same@example.com", Enabled: true, LocalUserID: "USR-2"},
	}}
	recorder := &memoryRecorder{}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	repaired := users.rows["USR-1"]
	assert.Equal(t, "new@example.com", repaired.Email)
	assert.False(t, repaired.IsActive)

	// The in-sync row is untouched and unaudited.
	assert.Equal(t, []string{"USR-1"}, users.updates)
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.ActionReconcileSync, recorder.entries[0].Action)
	assert.Equal(t, audit.OutcomeSuccess, recorder.entries[0].Outcome)
	assert.Equal(t, audit.ActorSystem, recorder.entries[0].Actor)
}

/*
TestRunOnce_RepairsWorkflowCreatedAccounts runs the signup flow end to end
and then drifts the provider. Accounts created by the workflows carry no
correlation attribute on the provider side, so the reconciler must resolve
them through the IdP subject; only the attribute path would see nothing.
*/
func TestRunOnce_RepairsWorkflowCreatedAccounts(t *testing.T) {
	provider := &fakeIdP{}
	users := newFakeUserStore()
	recorder := &memoryRecorder{}
	notifier := &fakeNotifier{}
	directory := user.NewDirectory(users, provider, recorder)
	signup := registration.NewService(
		newFakeRegistrationStore(), directory, provider, notifier, recorder,
		metrics.New(prometheus.NewRegistry()),
		registration.Options{VerificationTTL: time.Hour, ResendMax: 3},
	)

	_, err := signup.Register(context.Background(), registration.RegisterInput{
		Email:    "driver@example.com",
		Username: "ada.driver",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	account, err := signup.Verify(context.Background(), notifier.tokens[0])
	require.NoError(t, err)

	// The address is renamed at the provider behind the directory's back.
	for i := range provider.identities {
		if provider.identities[i].ID == account.IdPID {
			provider.identities[i].Email = "renamed@example.com"
		}
	}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	require.Contains(t, users.rows, account.ID)
	assert.Equal(t, "renamed@example.com", users.rows[account.ID].Email)
	assert.True(t, users.rows[account.ID].IsActive)
}

func TestRunOnce_SkipsUncorrelatedIdentities(t *testing.T) {
	users := newFakeUserStore()
	provider := &fakeIdP{identities: []idp.Identity{
		{ID: "ext-stranger", Email: "stranger@example.com", Enabled: true},
	}}
	recorder := &memoryRecorder{}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	assert.Empty(t, users.updates)
	assert.Empty(t, recorder.entries)
}

/*
TestRunOnce_ContinuesPastEntityFailure checks that one bad record does not
abort the batch: the failing entity is audited as a failure and the rest of
the page is still repaired.
*/
func TestRunOnce_ContinuesPastEntityFailure(t *testing.T) {
	users := newFakeUserStore(
		localUser("USR-1", "old@example.com", true),
		localUser("USR-2", "stale@example.com", true),
	)
	users.updateErr["USR-1"] = errors.New("write refused")
	provider := &fakeIdP{identities: []idp.Identity{
		{ID: "ext-USR-1", Email: "fresh@example.com", Enabled: true, LocalUserID: "USR-1"},
		{ID: "ext-USR-2", Email: "fresher@example.com", Enabled: true, LocalUserID: "USR-2"},
	}}
	recorder := &memoryRecorder{}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	assert.Equal(t, []string{"USR-2"}, users.updates)

	require.Len(t, recorder.entries, 2)
	outcomes := map[string]string{}
	for _, entry := range recorder.entries {
		outcomes[entry.Resource] = entry.Outcome
	}
	assert.Equal(t, audit.OutcomeFailure, outcomes["USR-1"])
	assert.Equal(t, audit.OutcomeSuccess, outcomes["USR-2"])
}

func TestRunOnce_MissingLocalRowIsFailureNotCreation(t *testing.T) {
	users := newFakeUserStore()
	provider := &fakeIdP{identities: []idp.Identity{
		{ID: "ext-ghost", Email: "ghost@example.com", Enabled: true, LocalUserID: "USR-ghost"},
	}}
	recorder := &memoryRecorder{}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	assert.Empty(t, users.rows)
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.OutcomeFailure, recorder.entries[0].Outcome)
}

func TestRunOnce_PagesThroughRealm(t *testing.T) {
	var identities []idp.Identity
	var stored []*user.User
	for i := 0; i < 250; i++ {
		id := localUser(idString(i), "stale@example.com", true)
		stored = append(stored, id)
		identities = append(identities, idp.Identity{
			ID:          "ext-" + id.ID,
			Email:       "fresh@example.com",
			Enabled:     true,
			LocalUserID: id.ID,
		})
	}
	users := newFakeUserStore(stored...)
	provider := &fakeIdP{identities: identities}
	recorder := &memoryRecorder{}

	newReconciler(provider, users, recorder).RunOnce(context.Background())

	assert.Len(t, users.updates, 250)
}

func idString(i int) string {
	return "USR-" + string(rune('A'+i/26)) + string(rune('A'+i%26))
}
