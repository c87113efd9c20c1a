// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/voltgrid/voltgrid/internal/platform/request"
	"github.com/voltgrid/voltgrid/internal/platform/respond"
	"github.com/voltgrid/voltgrid/internal/platform/validate"
)

// Handler implements the HTTP layer for the authentication workflow.
type Handler struct {
	service *Service
}

// NewHandler constructs a new auth [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] with the anonymous session endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)

	return router
}

// ProfileRoutes returns a [chi.Router] with the authenticated self-profile
// endpoint; the authentication gate is applied where it is mounted.
func (handler *Handler) ProfileRoutes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.me)

	return router
}

// loginRequest defines the expected JSON payload for a login.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

/*
POST /api/v1/auth/login.

Description: Exchanges credentials for a token pair and the account summary.

Request:
  - body: loginRequest

Response:
  - 200: Session: Token pair and account summary
  - 401: ErrUnauthorized: Bad credentials, or inactive/unverified account
  - 404: ErrNotFound: Identity has no directory entry (drift)
  - 429: ErrRateLimited: Attempt threshold exceeded
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("identifier", input.Identifier).Required("password", input.Password)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.service.Login(request.Context(), LoginInput{
		Identifier: input.Identifier,
		Password:   input.Password,
		RequestIP:  request.RemoteAddr,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

// tokenRequest carries a refresh token for refresh and logout.
type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

/*
POST /api/v1/auth/refresh.

Description: Exchanges a refresh token for a new token pair without
re-entering credentials.

Request:
  - body: tokenRequest

Response:
  - 200: Session: Fresh token pair and account summary
  - 401: ErrUnauthorized: Refresh token expired, revoked, or unknown
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input tokenRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("refresh_token", input.RefreshToken)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.service.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, session)
}

/*
POST /api/v1/auth/logout.

Description: Revokes a refresh token. Safe to repeat; a second logout with
the same token also reports success.

Request:
  - body: tokenRequest

Response:
  - 204: No Content: Token revoked (or already revoked)
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	var input tokenRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("refresh_token", input.RefreshToken)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Logout(request.Context(), input.RefreshToken); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GET /api/v1/me.

Description: Returns the directory entry of the authenticated caller.

Response:
  - 200: User: The caller's directory entry
  - 401: ErrUnauthorized: Missing or invalid token
  - 404: ErrNotFound: Identity has no directory entry (drift)
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	subject, err := requestutil.RequiredSubject(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	profile, err := handler.service.Profile(request.Context(), subject)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, profile)
}
