package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/http/respond"
	"github.com/hongminglow/all-in-iam/internal/models/dto"
)

// Authenticator is satisfied by *auth.Service.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (auth.Session, error)
}

// LoginObserver counts login outcomes.
type LoginObserver interface {
	ObserveLogin(outcome string)
}

// AuthHandler owns the login endpoint.
type AuthHandler struct {
	auth     Authenticator
	observer LoginObserver
	logger   *slog.Logger
}

func NewAuthHandler(a Authenticator, observer LoginObserver, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: a, observer: observer, logger: logger}
}

// Login exchanges email and password for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Failure(w, r, h.logger, err)
		return
	}

	session, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.observe("invalid_credentials")
			h.logger.InfoContext(r.Context(), "login rejected", slog.String("email", req.Email))
		} else {
			h.observe("error")
		}
		respond.Failure(w, r, h.logger, err)
		return
	}
	h.observe("success")

	respond.JSON(w, http.StatusOK, "login successful", dto.LoginResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
		User:        dto.NewUserResponse(&session.User),
	})
}

func (h *AuthHandler) observe(outcome string) {
	if h.observer != nil {
		h.observer.ObserveLogin(outcome)
	}
}
