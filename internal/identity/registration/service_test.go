// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package registration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/registration"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
)

// # Fakes

type fakeRegistrationStore struct {
	rows map[string]*registration.Registration
}

func newFakeRegistrationStore() *fakeRegistrationStore {
	return &fakeRegistrationStore{rows: make(map[string]*registration.Registration)}
}

func (s *fakeRegistrationStore) Create(_ context.Context, r *registration.Registration) error {
	clone := *r
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
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
	return s.transition(id, registration.StatusPending, registration.StatusVerified), nil
}

func (s *fakeRegistrationStore) MarkExpired(_ context.Context, id string) (bool, error) {
	return s.transition(id, registration.StatusPending, registration.StatusExpired), nil
}

func (s *fakeRegistrationStore) transition(id, from, to string) bool {
	r, ok := s.rows[id]
	if !ok || r.Status != from {
		return false
	}
	r.Status = to
	return true
}

func (s *fakeRegistrationStore) RotateToken(_ context.Context, id, digest string, expiresAt time.Time) error {
	r, ok := s.rows[id]
	if !ok || r.Status != registration.StatusPending {
		return apperr.NotFound("registration")
	}
	r.TokenDigest = digest
	r.ExpiresAt = expiresAt
	return nil
}

func (s *fakeRegistrationStore) RecordResend(_ context.Context, id string, maxResends int, cooldown time.Duration) (bool, error) {
	r, ok := s.rows[id]
	if !ok || r.Status != registration.StatusPending || r.ResendCount >= maxResends {
		return false, nil
	}
	if r.LastResend != nil && r.LastResend.After(time.Now().Add(-cooldown)) {
		return false, nil
	}
	now := time.Now()
	r.ResendCount++
	r.LastResend = &now
	return true, nil
}

type fakeUserStore struct {
	rows map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{rows: make(map[string]*user.User)}
}

func (s *fakeUserStore) Create(_ context.Context, u *user.User) error {
	s.rows[u.ID] = u
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (*user.User, error) {
	if u, ok := s.rows[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range s.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (*user.User, error) {
	for _, u := range s.rows {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) FindByIdPID(_ context.Context, idpID string) (*user.User, error) {
	for _, u := range s.rows {
		if u.IdPID == idpID {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *fakeUserStore) Update(_ context.Context, u *user.User) error {
	s.rows[u.ID] = u
	return nil
}

func (s *fakeUserStore) UpdateLastLogin(context.Context, string) error {
	return nil
}

func (s *fakeUserStore) SoftDelete(_ context.Context, id string) error {
	delete(s.rows, id)
	return nil
}

type fakeIdP struct {
	idp.Client

	nextID    int
	created   []idp.NewIdentity
	enabled   map[string]bool
	createErr error
}

func newFakeIdP() *fakeIdP {
	return &fakeIdP{enabled: make(map[string]bool)}
}

func (f *fakeIdP) CreateIdentity(_ context.Context, identity idp.NewIdentity) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("idp-%d", f.nextID)
	f.created = append(f.created, identity)
	f.enabled[id] = identity.Enabled
	return id, nil
}

func (f *fakeIdP) EnableIdentity(_ context.Context, idpID string) error {
	f.enabled[idpID] = true
	return nil
}

func (f *fakeIdP) DisableIdentity(_ context.Context, idpID string) error {
	f.enabled[idpID] = false
	return nil
}

type fakeNotifier struct {
	verificationTokens []string
	lastEmail          string
}

func (f *fakeNotifier) SendVerification(_ context.Context, email, _, token string, _ time.Time) error {
	f.lastEmail = email
	f.verificationTokens = append(f.verificationTokens, token)
	return nil
}

func (f *fakeNotifier) SendInvitation(context.Context, string, string, string, time.Time) error {
	return nil
}

type memoryRecorder struct {
	entries []audit.Entry
}

func (r *memoryRecorder) Append(_ context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

// # Harness

type fixture struct {
	service  *registration.Service
	store    *fakeRegistrationStore
	users    *fakeUserStore
	idp      *fakeIdP
	notifier *fakeNotifier
	recorder *memoryRecorder
}

func newFixture(options registration.Options) *fixture {
	f := &fixture{
		store:    newFakeRegistrationStore(),
		users:    newFakeUserStore(),
		idp:      newFakeIdP(),
		notifier: &fakeNotifier{},
		recorder: &memoryRecorder{},
	}
	directory := user.NewDirectory(f.users, f.idp, f.recorder)
	f.service = registration.NewService(
		f.store, directory, f.idp, f.notifier, f.recorder,
		metrics.New(prometheus.NewRegistry()), options,
	)
	return f
}

func defaultOptions() registration.Options {
	return registration.Options{
		VerificationTTL: 24 * time.Hour,
		ResendCooldown:  0,
		ResendMax:       3,
	}
}

func register(t *testing.T, f *fixture) *registration.Registration {
	t.Helper()
	staged, err := f.service.Register(context.Background(), registration.RegisterInput{
		Email:    "Driver@Example.COM",
		Username: "Ada.Driver",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	return staged
}

// # Tests

/*
TestRegister_StagesDisabledIdentity checks that a fresh signup creates a
disabled IdP identity and a pending staging row, and that the verification
token reaches the notifier but never the staging row in the clear.
*/
func TestRegister_StagesDisabledIdentity(t *testing.T) {
	f := newFixture(defaultOptions())

	staged := register(t, f)

	assert.Equal(t, registration.StatusPending, staged.Status)
	assert.Equal(t, "driver@example.com", staged.Email)
	assert.Equal(t, "ada.driver", staged.Username)

	require.Len(t, f.idp.created, 1)
	assert.False(t, f.idp.created[0].Enabled)

	require.Len(t, f.notifier.verificationTokens, 1)
	assert.NotEqual(t, f.notifier.verificationTokens[0], staged.TokenDigest)
	assert.NotEmpty(t, staged.TokenDigest)
}

func TestRegister_EmailAlreadyInDirectory(t *testing.T) {
	f := newFixture(defaultOptions())
	f.users.rows["USR-1"] = &user.User{ID: "USR-1", Email: "driver@example.com", Username: "other"}

	_, err := f.service.Register(context.Background(), registration.RegisterInput{
		Email:    "driver@example.com",
		Username: "ada.driver",
		Password: "correct-horse-battery",
	})

	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
	assert.Empty(t, f.idp.created)
}

/*
TestRegister_PendingEmailConflicts checks that a live pending signup blocks
the address: a second attempt fails with Conflict and leaves the first
registration untouched, so its verification link keeps working. The provider
is primed to reject duplicates to prove the second attempt never reaches it.
*/
func TestRegister_PendingEmailConflicts(t *testing.T) {
	f := newFixture(defaultOptions())
	first := register(t, f)
	f.idp.createErr = idp.ErrConflict

	_, err := f.service.Register(context.Background(), registration.RegisterInput{
		Email:    "driver@example.com",
		Username: "impostor",
		Password: "some-other-secret",
	})

	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
	assert.Equal(t, registration.StatusPending, f.store.rows[first.ID].Status)
	require.Len(t, f.idp.created, 1)

	created, err := f.service.Verify(context.Background(), f.notifier.verificationTokens[0])
	require.NoError(t, err)
	assert.Equal(t, "driver@example.com", created.Email)
}

func TestRegister_SupersedesLapsedPending(t *testing.T) {
	options := defaultOptions()
	options.VerificationTTL = -time.Minute
	f := newFixture(options)
	first := register(t, f)

	second := register(t, f)

	assert.Equal(t, registration.StatusExpired, f.store.rows[first.ID].Status)
	assert.Equal(t, registration.StatusPending, f.store.rows[second.ID].Status)
}

/*
TestVerify_CreatesActiveUser checks the happy path: the winning verify
enables the IdP identity and materializes a verified, active directory
entry with the default role.
*/
func TestVerify_CreatesActiveUser(t *testing.T) {
	f := newFixture(defaultOptions())
	register(t, f)
	token := f.notifier.verificationTokens[0]

	created, err := f.service.Verify(context.Background(), token)

	require.NoError(t, err)
	assert.True(t, created.IsVerified)
	assert.True(t, created.IsActive)
	assert.Equal(t, "driver@example.com", created.Email)
	assert.True(t, f.idp.enabled[created.IdPID])
}

func TestVerify_SecondAttemptConflicts(t *testing.T) {
	f := newFixture(defaultOptions())
	register(t, f)
	token := f.notifier.verificationTokens[0]

	_, err := f.service.Verify(context.Background(), token)
	require.NoError(t, err)

	_, err = f.service.Verify(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
}

func TestVerify_UnknownToken(t *testing.T) {
	f := newFixture(defaultOptions())

	_, err := f.service.Verify(context.Background(), "not-a-real-token")

	require.Error(t, err)
	assert.Equal(t, 404, apperr.As(err).HTTPStatus)
}

func TestVerify_ExpiredLinkIsGone(t *testing.T) {
	options := defaultOptions()
	options.VerificationTTL = -time.Minute
	f := newFixture(options)
	staged := register(t, f)
	token := f.notifier.verificationTokens[0]

	_, err := f.service.Verify(context.Background(), token)

	require.Error(t, err)
	assert.Equal(t, 410, apperr.As(err).HTTPStatus)
	assert.Equal(t, registration.StatusExpired, f.store.rows[staged.ID].Status)
}

/*
TestResend_RotatesToken checks that a resend invalidates the previous link:
the stored digest changes and the old token no longer verifies.
*/
func TestResend_RotatesToken(t *testing.T) {
	f := newFixture(defaultOptions())
	staged := register(t, f)
	originalDigest := staged.TokenDigest
	originalToken := f.notifier.verificationTokens[0]

	err := f.service.ResendVerification(context.Background(), "driver@example.com")

	require.NoError(t, err)
	require.Len(t, f.notifier.verificationTokens, 2)
	assert.NotEqual(t, originalDigest, f.store.rows[staged.ID].TokenDigest)

	_, err = f.service.Verify(context.Background(), originalToken)
	require.Error(t, err)
	assert.Equal(t, 404, apperr.As(err).HTTPStatus)
}

func TestResend_UnknownEmailRevealsNothing(t *testing.T) {
	f := newFixture(defaultOptions())

	err := f.service.ResendVerification(context.Background(), "stranger@example.com")

	assert.NoError(t, err)
	assert.Empty(t, f.notifier.verificationTokens)
}

func TestResend_BeyondCapIsRateLimited(t *testing.T) {
	options := defaultOptions()
	options.ResendMax = 2
	f := newFixture(options)
	register(t, f)

	require.NoError(t, f.service.ResendVerification(context.Background(), "driver@example.com"))
	require.NoError(t, f.service.ResendVerification(context.Background(), "driver@example.com"))

	err := f.service.ResendVerification(context.Background(), "driver@example.com")
	require.Error(t, err)
	assert.Equal(t, 429, apperr.As(err).HTTPStatus)
}

func TestResend_CooldownDenies(t *testing.T) {
	options := defaultOptions()
	options.ResendCooldown = time.Hour
	f := newFixture(options)
	register(t, f)

	require.NoError(t, f.service.ResendVerification(context.Background(), "driver@example.com"))

	err := f.service.ResendVerification(context.Background(), "driver@example.com")
	require.Error(t, err)
	assert.Equal(t, 429, apperr.As(err).HTTPStatus)
}
