package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"merchant-admin/internal/middleware"
	"merchant-admin/internal/models"
	"merchant-admin/internal/services"

	"github.com/rs/zerolog"
)

// OperatorDirectory is the operator persistence the auth endpoints need.
type OperatorDirectory interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.Operator, error)
	Authenticate(ctx context.Context, req *models.LoginRequest) (*models.Operator, error)
	GetOperatorByID(ctx context.Context, id int) (*models.Operator, error)
}

type AuthHandler struct {
	operators   OperatorDirectory
	authService *services.AuthService
	logger      zerolog.Logger
}

func NewAuthHandler(operators OperatorDirectory, authService *services.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		operators:   operators,
		authService: authService,
		logger:      logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	op, err := h.operators.Register(r.Context(), &req)
	switch {
	case errors.Is(err, models.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	case errors.Is(err, services.ErrOperatorExists):
		respondWithError(w, http.StatusConflict, "operator_exists", err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("Registration failed")
		respondWithError(w, http.StatusInternalServerError, "registration_failed", "Failed to register operator")
		return
	}

	h.respondWithToken(w, http.StatusCreated, op)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	op, err := h.operators.Authenticate(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Str("email", req.Email).Msg("Login failed")
		respondWithError(w, http.StatusUnauthorized, "authentication_failed", "Invalid email or password")
		return
	}

	h.respondWithToken(w, http.StatusOK, op)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.GetOperatorID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Operator not authenticated")
		return
	}

	op, err := h.operators.GetOperatorByID(r.Context(), operatorID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "operator_not_found", "Operator not found")
		return
	}

	h.respondWithToken(w, http.StatusOK, op)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, code int, op *models.Operator) {
	token, err := h.authService.GenerateToken(op.ID, op.Email, op.Role)
	if err != nil {
		h.logger.Error().Err(err).Msg("Token generation failed")
		respondWithError(w, http.StatusInternalServerError, "token_generation_failed", "Failed to generate token")
		return
	}

	respondWithJSON(w, code, models.AuthResponse{
		Operator: op,
		Token:    token,
	})
}
