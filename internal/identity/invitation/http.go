// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package invitation

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voltgrid/voltgrid/internal/platform/apperr"
	requestutil "github.com/voltgrid/voltgrid/internal/platform/request"
	"github.com/voltgrid/voltgrid/internal/platform/respond"
	"github.com/voltgrid/voltgrid/internal/platform/sec"
	"github.com/voltgrid/voltgrid/internal/platform/validate"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// Handler implements the HTTP layer for invitations.
//
// Issuing, listing, and cancelling are admin-only and gated where
// [Handler.AdminRoutes] is mounted; acceptance is anonymous since the
// invitee has no account yet.
type Handler struct {
	service *Service
}

// NewHandler constructs a new invitation [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AdminRoutes returns a [chi.Router] with the admin-facing endpoints.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.create)
	router.Get("/", handler.list)
	router.Delete("/{id}", handler.cancel)

	return router
}

// PublicRoutes returns a [chi.Router] with the anonymous acceptance endpoint.
func (handler *Handler) PublicRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/accept", handler.accept)

	return router
}

// createRequest defines the expected JSON payload for issuing an invitation.
type createRequest struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	NetworkID string `json:"network_id"`
	StationID string `json:"station_id"`
	TTLHours  int    `json:"ttl_hours"`
}

/*
POST /api/v1/invitations.

Description: Issues a role-carrying invitation and emails the acceptance
link.

Request:
  - body: createRequest

Response:
  - 201: Invitation: The pending invitation
  - 400: Validation: Unknown role or scope mismatch
  - 409: ErrConflict: Address already has an account
*/
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("email", input.Email).Email("email", input.Email).
		Required("role", input.Role).
		Custom("ttl_hours", input.TTLHours < 0, "Must not be negative")
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

	created, err := handler.service.Create(request.Context(), claims.Subject, CreateInput{
		Email:     input.Email,
		Role:      role,
		NetworkID: input.NetworkID,
		StationID: input.StationID,
		TTL:       time.Duration(input.TTLHours) * time.Hour,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

/*
GET /api/v1/invitations.

Description: Lists invitations, newest first.

Request:
  - offset, limit: query (optional paging, limit capped at 100)

Response:
  - 200: []Invitation: One page of invitations
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	offset, _ := strconv.Atoi(request.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(request.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	invitations, err := handler.service.List(request.Context(), offset, limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if invitations == nil {
		invitations = []Invitation{}
	}

	respond.OK(writer, invitations)
}

/*
DELETE /api/v1/invitations/{id}.

Description: Withdraws a pending invitation.

Response:
  - 204: No Content: Invitation withdrawn
  - 404: ErrNotFound: Unknown invitation
  - 409: ErrConflict: Not in pending state
*/
func (handler *Handler) cancel(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Cancel(request.Context(), claims.Subject, chi.URLParam(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// acceptRequest defines the expected JSON payload for claiming an invitation.
type acceptRequest struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

/*
POST /api/v1/invitations/accept.

Description: Claims an invitation, creates the credentials at the identity
provider, and materializes the directory entry with the invited role.

Request:
  - body: acceptRequest

Response:
  - 201: User: The created directory entry
  - 404: ErrNotFound: Unknown token
  - 409: ErrConflict: Already accepted, or username taken
  - 410: ErrGone: Invitation expired or withdrawn
  - 503: ErrUnavailable: Identity provider unreachable (retryable)
*/
func (handler *Handler) accept(writer http.ResponseWriter, request *http.Request) {
	var input acceptRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	username := normalize.Username(input.Username)

	v := &validate.Validator{}
	v.Required("token", input.Token).
		Required("username", input.Username).
		MinLen("username", username, 3).MaxLen("username", username, 32).
		Username("username", username).
		MaxLen("display_name", input.DisplayName, 80).
		Required("password", input.Password).MinLen("password", input.Password, 10)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.service.Accept(request.Context(), AcceptInput{
		Token:       input.Token,
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Password:    input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}
