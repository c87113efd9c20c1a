// Copyright (c) 2026 Voltgrid. All rights reserved.
// Author: platform@voltgrid.io

package registration

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/voltgrid/voltgrid/internal/platform/request"
	"github.com/voltgrid/voltgrid/internal/platform/respond"
	"github.com/voltgrid/voltgrid/internal/platform/validate"
	"github.com/voltgrid/voltgrid/pkg/normalize"
)

// Handler implements the HTTP layer for self-service onboarding.
//
// All endpoints are anonymous; the registration workflow is how an account
// comes to exist in the first place.
type Handler struct {
	service *Service
}

// NewHandler constructs a new registration [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a [chi.Router] configured with the onboarding endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.register)
	router.Post("/verify", handler.verify)
	router.Post("/resend", handler.resend)

	return router
}

// registerRequest defines the expected JSON payload for a new signup.
type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

/*
POST /api/v1/registrations.

Description: Stages a new signup and emails the verification link. The
account cannot authenticate until the address is verified.

Request:
  - body: registerRequest

Response:
  - 202: Registration: The staged registration
  - 400: Validation: Malformed email, username, or password
  - 409: ErrConflict: Email or username already in use
  - 503: ErrUnavailable: Identity provider unreachable
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	username := normalize.Username(input.Username)

	v := &validate.Validator{}
	v.Required("email", input.Email).Email("email", input.Email).
		Required("username", input.Username).
		MinLen("username", username, 3).MaxLen("username", username, 32).
		Username("username", username).
		MaxLen("display_name", input.DisplayName, 80).
		Required("password", input.Password).MinLen("password", input.Password, 10)

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	staged, err := handler.service.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Password:    input.Password,
		RequestIP:   request.RemoteAddr,
		UserAgent:   request.UserAgent(),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, staged)
}

// verifyRequest carries the raw token from the emailed link.
type verifyRequest struct {
	Token string `json:"token"`
}

/*
POST /api/v1/registrations/verify.

Description: Consumes a verification token, enables the identity, and
creates the directory entry. Exactly one of any concurrent attempts
succeeds.

Request:
  - body: verifyRequest

Response:
  - 201: User: The created directory entry
  - 404: ErrNotFound: Unknown token
  - 409: ErrConflict: Already verified
  - 410: ErrGone: Link expired or superseded
*/
func (handler *Handler) verify(writer http.ResponseWriter, request *http.Request) {
	var input verifyRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("token", input.Token)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	created, err := handler.service.Verify(request.Context(), input.Token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, created)
}

// resendRequest identifies the pending signup by its email address.
type resendRequest struct {
	Email string `json:"email"`
}

/*
POST /api/v1/registrations/resend.

Description: Rotates the verification token and re-sends the link. The
response does not reveal whether the address has a pending registration.

Request:
  - body: resendRequest

Response:
  - 202: Accepted regardless of whether the address is known
  - 429: ErrRateLimited: Resend cap or cooldown hit
*/
func (handler *Handler) resend(writer http.ResponseWriter, request *http.Request) {
	var input resendRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	v.Required("email", input.Email).Email("email", input.Email)
	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResendVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Accepted(writer, map[string]string{"status": "accepted"})
}
