// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package ctxutil_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/voltgrid/voltgrid/internal/platform/ctxutil"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
)

/*
TestContext_RequestID verifies that Request IDs can be injected and retrieved.
*/
func TestContext_RequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "test-request-id"

	// 1. Initially should be empty
	assert.Empty(t, ctxutil.GetRequestID(ctx))

	// 2. Inject and retrieve
	ctx = ctxutil.WithRequestID(ctx, requestID)
	assert.Equal(t, requestID, ctxutil.GetRequestID(ctx))
}

/*
TestContext_Logger verifies that a custom logger can be stored in context.
*/
func TestContext_Logger(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// 1. Initially should return the default logger
	assert.Equal(t, slog.Default(), ctxutil.GetLogger(ctx))

	// 2. Inject and retrieve
	ctx = ctxutil.WithLogger(ctx, logger)
	assert.Equal(t, logger, ctxutil.GetLogger(ctx))
}

/*
TestContext_Caller verifies that verified claims can be stored in context.
*/
func TestContext_Caller(t *testing.T) {
	ctx := context.Background()

	// 1. Anonymous context has no caller
	assert.Nil(t, ctxutil.GetCaller(ctx))

	// 2. Inject and retrieve
	claims := &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "idp-subject-1"},
		Email:            "alice@example.com",
		Role:             string(sec.RoleUser),
	}
	ctx = ctxutil.WithCaller(ctx, claims)
	assert.Equal(t, claims, ctxutil.GetCaller(ctx))
}
