package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Tokens *auth.TokenPair `json:"tokens"`
	Admin  *Admin          `json:"admin"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	a, tokens, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			slog.Warn("admin login rejected", "username", req.Username)
			api.HandleError(w, api.ErrInvalidCredentials)
			return
		}
		slog.Error("admin login", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("admin logged in", "admin_id", a.ID)
	api.JSON(w, http.StatusOK, LoginResponse{Tokens: tokens, Admin: a})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("loading admin stats", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, st)
}
