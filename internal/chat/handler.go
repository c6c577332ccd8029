package chat

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/auth"
	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/llm"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type SendRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
	GuestID string `json:"guest_id" validate:"omitempty,max=64"`
}

func (r *SendRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
}

// Send handles POST /chat.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	ref, err := auth.ResolveAccount(r, req.GuestID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	reply, err := h.svc.Send(r.Context(), ref, req.Message)
	if err != nil {
		h.handleSendError(w, ref, err)
		return
	}

	api.JSON(w, http.StatusOK, reply)
}

func (h *Handler) handleSendError(w http.ResponseWriter, ref ledger.AccountRef, err error) {
	var exhausted *ledger.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		api.HandleError(w, api.NewQuotaExhaustedError(exhausted.Usage))
	case errors.Is(err, ErrBurstLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(burstWindow.Seconds())))
		api.HandleError(w, api.ErrTooManyRequests)
	case errors.Is(err, ledger.ErrInvalidAccount):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, llm.ErrProviderUnavailable),
		errors.Is(err, llm.ErrRateLimited),
		errors.Is(err, llm.ErrAuthFailed),
		errors.Is(err, llm.ErrInvalidRequest),
		errors.Is(err, llm.ErrEmptyCompletion),
		errors.Is(err, llm.ErrNotConfigured):
		slog.Error("chat: completion failed", "error", err, "account", ref.Key())
		api.HandleError(w, api.ErrProviderUnavailable)
	default:
		slog.Error("chat: sending message", "error", err, "account", ref.Key())
		api.HandleError(w, api.ErrInternalServer)
	}
}

// History handles GET /chat/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	ref, err := auth.ResolveAccount(r, r.URL.Query().Get("guest_id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	page, pageSize := api.ParsePage(r)
	msgs, total, err := h.svc.History(r.Context(), ref, page, pageSize)
	if err != nil {
		slog.Error("chat: listing history", "error", err, "account", ref.Key())
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, msgs, total, page, pageSize)
}

// Quota handles GET /quota.
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	ref, err := auth.ResolveAccount(r, r.URL.Query().Get("guest_id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	usage, err := h.svc.Quota(r.Context(), ref)
	if err != nil {
		slog.Error("chat: reading quota", "error", err, "account", ref.Key())
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, usage)
}
