package api

import (
	"errors"
	"net/http"

	"github.com/RichardoC/orion/internal/auth"
	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/models"
	"go.uber.org/zap"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, user, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		errorJSON(w, http.StatusBadRequest, "Email and password required.")
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		errorJSON(w, http.StatusBadRequest, "Password must be at least 6 characters.")
		return
	case errors.Is(err, auth.ErrEmailTaken):
		errorJSON(w, http.StatusBadRequest, "Email already registered.")
		return
	case err != nil:
		h.logger.Error("Signup failed", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "Failed to create account.")
		return
	}

	h.logger.Info("Created account", zap.String("userID", user.ID))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		errorJSON(w, http.StatusBadRequest, "Email and password required.")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		errorJSON(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	case err != nil:
		h.logger.Error("Login failed", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "Login failed.")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), userIDFrom(r.Context()))
	if errors.Is(err, db.ErrNotFound) {
		errorJSON(w, http.StatusNotFound, "User not found.")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get user", zap.Error(err))
		errorJSON(w, http.StatusInternalServerError, "Failed to get user.")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
