// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package user

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	requestutil "github.com/voltgrid/voltgrid/internal/platform/request"
	"github.com/voltgrid/voltgrid/internal/platform/respond"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/internal/platform/validate"
)

// Handler implements the HTTP layer for directory administration.
//
// All routes returned by [Handler.Routes] are admin-only; the role gate is
// applied where the router is mounted.
type Handler struct {
	directory *Directory
}

// NewHandler constructs a new directory [Handler].
func NewHandler(directory *Directory) *Handler {
	return &Handler{directory: directory}
}

// Routes returns a [chi.Router] configured with the directory admin endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{id}", handler.getUser)
	router.Patch("/{id}/role", handler.changeRole)
	router.Post("/{id}/activate", handler.activate)
	router.Post("/{id}/deactivate", handler.deactivate)
	router.Delete("/{id}", handler.deleteUser)

	return router
}

/*
GET /api/v1/users/{id}.

Description: Retrieves a directory entry by its local id.

Response:
  - 200: User: Full directory entry
  - 404: ErrNotFound: No such user
*/
func (handler *Handler) getUser(writer http.ResponseWriter, request *http.Request) {
	userID := chi.URLParam(request, "id")
	if userID == "" {
		respond.Error(writer, request, apperr.NotFound("user"))
		return
	}

	found, err := handler.directory.Get(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, found)
}

// changeRoleRequest defines the expected JSON payload for role assignment.
type changeRoleRequest struct {
	Role      string `json:"role"`
	NetworkID string `json:"network_id"`
	StationID string `json:"station_id"`
}

/*
PATCH /api/v1/users/{id}/role.

Description: Assigns a new role, with scope identifiers where the role
requires them.

Request:
  - id: string
  - body: changeRoleRequest

Response:
  - 200: User: The updated entry
  - 400: Validation: Unknown role or scope mismatch
  - 404: ErrNotFound: No such user
*/
func (handler *Handler) changeRole(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("role", input.Role)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	role, err := sec.ParseRole(input.Role)
	if err != nil {
		respond.Error(writer, request, apperr.ValidationError("Unknown role",
			apperr.FieldError{Field: "role", Message: err.Error()}))
		return
	}

	updated, err := handler.directory.ChangeRole(request.Context(),
		claims.Subject, chi.URLParam(request, "id"), role, input.NetworkID, input.StationID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
POST /api/v1/users/{id}/activate.

Description: Re-enables a deactivated account in both the IdP and the
directory. Idempotent for already-active accounts.

Response:
  - 200: User: The updated entry
  - 404: ErrNotFound: No such user
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) activate(writer http.ResponseWriter, request *http.Request) {
	handler.setActive(writer, request, true)
}

/*
POST /api/v1/users/{id}/deactivate.

Description: Disables an account in both the IdP and the directory, which
blocks future logins. Idempotent for already-inactive accounts.

Response:
  - 200: User: The updated entry
  - 404: ErrNotFound: No such user
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) deactivate(writer http.ResponseWriter, request *http.Request) {
	handler.setActive(writer, request, false)
}

func (handler *Handler) setActive(writer http.ResponseWriter, request *http.Request, active bool) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	updated, err := handler.directory.SetActive(request.Context(),
		claims.Subject, chi.URLParam(request, "id"), active)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
DELETE /api/v1/users/{id}.

Description: Soft-deletes a directory entry and disables its IdP identity.

Response:
  - 204: No Content: Entry deleted
  - 404: ErrNotFound: No such user
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) deleteUser(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.directory.Delete(request.Context(), claims.Subject, chi.URLParam(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
