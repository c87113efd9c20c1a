// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/internal/identity/audit"
	"github.com/voltgrid/voltgrid/internal/identity/auth"
	"github.com/voltgrid/voltgrid/internal/identity/user"
	"github.com/voltgrid/voltgrid/internal/idp"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	"github.com/voltgrid/voltgrid/internal/platform/metrics"
	"github.com/voltgrid/voltgrid/internal/platform/middleware"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

// # Fakes

type fakeIdP struct {
	idp.Client

	password   string
	revoked    []string
	refreshErr error
	authErr    error

	tokenSerial int
}

func (f *fakeIdP) Authenticate(_ context.Context, _, secret string) (*idp.TokenPair, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	if secret != f.password {
		return nil, idp.ErrInvalidCredentials
	}
	return f.issue(), nil
}

func (f *fakeIdP) Refresh(context.Context, string) (*idp.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.issue(), nil
}

func (f *fakeIdP) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeIdP) issue() *idp.TokenPair {
	f.tokenSerial++
	return &idp.TokenPair{
		AccessToken:      fmt.Sprintf("access-%d", f.tokenSerial),
		RefreshToken:     fmt.Sprintf("refresh-%d", f.tokenSerial),
		TokenType:        "Bearer",
		ExpiresIn:        5 * time.Minute,
		RefreshExpiresIn: time.Hour,
	}
}

// fakeVerifier accepts every token the fake IdP issues and binds it to one
// subject.
type fakeVerifier struct {
	subject string
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*sec.AuthClaims, error) {
	if len(token) < 7 || token[:7] != "access-" {
		return nil, idp.ErrTokenInvalid
	}
	return &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: f.subject},
		Role:             string(sec.RoleUser),
	}, nil
}

type fakeUserStore struct {
	rows       map[string]*user.User
	lastLogins []string
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

func (s *fakeUserStore) UpdateLastLogin(_ context.Context, id string) error {
	s.lastLogins = append(s.lastLogins, id)
	return nil
}

func (s *fakeUserStore) SoftDelete(_ context.Context, id string) error {
	delete(s.rows, id)
	return nil
}

// countingLimiter admits the first max attempts per key.
type countingLimiter struct {
	max    int
	counts map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= l.max, nil
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
	service  *auth.Service
	idp      *fakeIdP
	verifier *fakeVerifier
	users    *fakeUserStore
	limiter  *countingLimiter
	recorder *memoryRecorder
}

func newFixture(account *user.User) *fixture {
	f := &fixture{
		idp:      &fakeIdP{password: "correct-horse-battery"},
		verifier: &fakeVerifier{subject: "idp-7"},
		users:    newFakeUserStore(),
		limiter:  &countingLimiter{max: 10},
		recorder: &memoryRecorder{},
	}
	if account != nil {
		f.users.rows[account.ID] = account
	}
	directory := user.NewDirectory(f.users, f.idp, f.recorder)
	f.service = auth.NewService(
		f.idp, f.verifier, directory, f.limiter, f.recorder,
		metrics.New(prometheus.NewRegistry()), 5*time.Minute,
	)
	return f
}

func activeAccount() *user.User {
	return &user.User{
		ID:         "USR-7",
		IdPID:      "idp-7",
		Email:      "driver@example.com",
		Username:   "ada.driver",
		Role:       sec.RoleUser,
		IsVerified: true,
		IsActive:   true,
	}
}

func login(f *fixture) (*auth.Session, error) {
	return f.service.Login(context.Background(), auth.LoginInput{
		Identifier: "driver@example.com",
		Password:   "correct-horse-battery",
		RequestIP:  "203.0.113.9",
	})
}

// # Tests

func TestLogin_ReturnsSessionAndRecordsLastLogin(t *testing.T) {
	f := newFixture(activeAccount())

	session, err := login(f)

	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "USR-7", session.User.ID)
	assert.Equal(t, "ada.driver", session.User.Username)
	assert.Equal(t, []string{"USR-7"}, f.users.lastLogins)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(activeAccount())

	_, err := f.service.Login(context.Background(), auth.LoginInput{
		Identifier: "driver@example.com",
		Password:   "wrong",
		RequestIP:  "203.0.113.9",
	})

	require.Error(t, err)
	assert.Equal(t, 401, apperr.As(err).HTTPStatus)
	assert.Empty(t, f.users.lastLogins)
}

func TestLogin_InactiveAccountRefusedDespiteCredentials(t *testing.T) {
	account := activeAccount()
	account.IsActive = false
	f := newFixture(account)

	_, err := login(f)

	require.Error(t, err)
	assert.Equal(t, 401, apperr.As(err).HTTPStatus)
}

func TestLogin_UnverifiedAccountRefusedDespiteCredentials(t *testing.T) {
	account := activeAccount()
	account.IsVerified = false
	f := newFixture(account)

	_, err := login(f)

	require.Error(t, err)
	assert.Equal(t, 401, apperr.As(err).HTTPStatus)
}

/*
TestLogin_UnmappedIdentityIsDrift checks that a credential-valid identity
with no directory entry fails with NotFound rather than creating a row: the
gap is the reconciler's to repair.
*/
func TestLogin_UnmappedIdentityIsDrift(t *testing.T) {
	f := newFixture(nil)

	_, err := login(f)

	require.Error(t, err)
	assert.Equal(t, 404, apperr.As(err).HTTPStatus)
	assert.Empty(t, f.users.rows)
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(activeAccount())
	f.limiter.max = 2

	_, err := login(f)
	require.NoError(t, err)
	_, err = login(f)
	require.NoError(t, err)

	_, err = login(f)
	require.Error(t, err)
	assert.Equal(t, 429, apperr.As(err).HTTPStatus)
}

/*
TestRefresh_RoundTripPassesMiddleware checks the session round trip: the
access token from a refreshed session is accepted by the authentication
middleware using the same verifier.
*/
func TestRefresh_RoundTripPassesMiddleware(t *testing.T) {
	f := newFixture(activeAccount())
	first, err := login(f)
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, refreshed.AccessToken)

	var sawClaims bool
	handler := middleware.Authenticate(f.verifier)(http.HandlerFunc(
		func(writer http.ResponseWriter, request *http.Request) {
			sawClaims = true
			writer.WriteHeader(http.StatusOK)
		}))

	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set("Authorization", "Bearer "+refreshed.AccessToken)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, sawClaims)
}

func TestRefresh_InvalidTokenUnauthorized(t *testing.T) {
	f := newFixture(activeAccount())
	f.idp.refreshErr = idp.ErrTokenInvalid

	_, err := f.service.Refresh(context.Background(), "stale-refresh")

	require.Error(t, err)
	assert.Equal(t, 401, apperr.As(err).HTTPStatus)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(activeAccount())

	require.NoError(t, f.service.Logout(context.Background(), "refresh-1"))
	require.NoError(t, f.service.Logout(context.Background(), "refresh-1"))

	assert.Equal(t, []string{"refresh-1", "refresh-1"}, f.idp.revoked)
}
