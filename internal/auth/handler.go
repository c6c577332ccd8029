package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/users"
)

type Handler struct {
	authSvc *Service
	userSvc *users.Service
}

func NewHandler(authSvc *Service, userSvc *users.Service) *Handler {
	return &Handler{
		authSvc: authSvc,
		userSvc: userSvc,
	}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	FullName string `json:"full_name" validate:"max=255"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthResponse struct {
	Tokens *TokenPair  `json:"tokens"`
	User   *users.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	exists, err := h.userSvc.ExistsByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("checking username existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrUsernameTaken)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Create(r.Context(), users.CreateParams{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Email:        req.Email,
	})
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		// Lost a race with a concurrent registration of the same name.
		api.HandleError(w, api.ErrUsernameTaken)
		return
	case errors.Is(err, users.ErrEmailTaken):
		api.HandleError(w, api.ErrEmailTaken)
		return
	case err != nil:
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(r.Context(), userSubject(user))
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	api.JSON(w, http.StatusCreated, AuthResponse{Tokens: tokens, User: user})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.userSvc.GetByUsername(r.Context(), req.Username)
	if err != nil {
		slog.Error("getting user by username", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		CompareDummy(req.Password)
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := ComparePassword(user.PasswordHash, req.Password); err != nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	tokens, err := h.authSvc.GenerateTokens(r.Context(), userSubject(user))
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, AuthResponse{Tokens: tokens, User: user})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authSvc.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Warn("refreshing tokens", "error", err)
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(r.Context(), claims.UserID); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

func userSubject(u *users.User) Subject {
	return Subject{ID: u.ID.String(), Username: u.Username, Role: RoleUser}
}
