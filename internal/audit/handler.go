package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/ledger"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// List returns audit entries filtered by account_id, event_type, severity and an RFC 3339 from/to range.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := ListParams{
		AccountID: q.Get("account_id"),
		EventType: q.Get("event_type"),
		Severity:  q.Get("severity"),
	}
	params.Page, params.PageSize = api.ParsePage(r)

	if params.AccountID != "" {
		ref, err := ledger.ParseKey(params.AccountID)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError(`invalid account_id, expected "guest:<guest_id>" or "user:<uuid>"`))
			return
		}
		params.AccountID = ref.Key()
	}

	for name, dst := range map[string]**time.Time{"from": &params.From, "to": &params.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid "+name+" timestamp, expected RFC 3339"))
			return
		}
		*dst = &t
	}

	logs, total, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit logs", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}
