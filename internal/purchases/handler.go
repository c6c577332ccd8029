package purchases

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/auth"
	"github.com/aichat-platform/aichat/internal/ledger"
	"github.com/aichat-platform/aichat/internal/payment"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "Stripe-Signature"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type CreatePaymentRequest struct {
	PackageType string `json:"package_type" validate:"required"`
	GuestID     string `json:"guest_id" validate:"omitempty,max=64"`
}

type GrantPurchaseRequest struct {
	AccountKind   string `json:"account_kind" validate:"required,oneof=guest user"`
	AccountID     string `json:"account_id" validate:"required,max=64"`
	PackageType   string `json:"package_type" validate:"required_without=RequestsCount"`
	RequestsCount int    `json:"requests_count" validate:"omitempty,min=1,max=100000"`
	Amount        int64  `json:"amount" validate:"omitempty,min=0"`
}

func (h *Handler) Packages(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.svc.Packages())
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	ref, err := auth.ResolveAccount(r, req.GuestID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.svc.CreatePayment(r.Context(), ref, req.PackageType)
	if err != nil {
		h.handleError(w, "creating payment", err)
		return
	}

	api.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "purchaseID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid purchase ID"))
		return
	}

	ref, err := auth.ResolveAccount(r, r.URL.Query().Get("guest_id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	p, err := h.svc.Get(r.Context(), ref, id)
	if err != nil {
		h.handleError(w, "getting purchase", err)
		return
	}

	api.JSON(w, http.StatusOK, p)
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	res, err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		h.handleError(w, "handling payment webhook", err)
		return
	}

	writeRaw(w, http.StatusOK, res)
}

// Grant handles the admin-only manual purchase.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantPurchaseRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Grant(r.Context(), GrantRequest{
		Account:       ledger.AccountRef{Kind: ledger.Kind(req.AccountKind), ID: req.AccountID},
		PackageType:   req.PackageType,
		RequestsCount: req.RequestsCount,
		Amount:        req.Amount,
	})
	if err != nil {
		h.handleError(w, "granting purchase", err)
		return
	}

	if claims := auth.GetUserClaims(r.Context()); claims != nil {
		slog.Info("manual purchase granted", "admin", claims.Username, "purchase_id", res.PurchaseID, "account", req.AccountKind+":"+req.AccountID)
	}
	api.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrUnknownPackage),
		errors.Is(err, ErrMissingPurchaseRef),
		errors.Is(err, ledger.ErrInvalidAccount),
		errors.Is(err, ledger.ErrInvalidPurchase),
		errors.Is(err, payment.ErrMalformedEvent):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, payment.ErrInvalidSignature):
		slog.Warn("payment webhook rejected", "error", err)
		api.HandleError(w, api.NewBadRequestError("invalid signature"))
	case errors.Is(err, ledger.ErrPurchaseNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		api.HandleError(w, api.NewNotFoundError("purchase not found"))
	case errors.Is(err, ErrNotConfigured):
		api.HandleError(w, api.ErrPaymentsNotConfigured)
	case errors.Is(err, payment.ErrGateway):
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrPaymentUnavailable)
	default:
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

// writeRaw writes body without the data envelope; payment providers only check the status code.
func writeRaw(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
