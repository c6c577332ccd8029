package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Login(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(repo)
	require.NoError(t, svc.EnsureBootstrapAdmin(context.Background(), "admin", "s3cret-pass", "Root"))
	h := NewHandler(svc)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"success", `{"username":"admin","password":"s3cret-pass"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("response shape", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/login",
			strings.NewReader(`{"username":"admin","password":"s3cret-pass"}`))
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				Tokens map[string]any `json:"tokens"`
				Admin  map[string]any `json:"admin"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Data.Tokens["access_token"])
		assert.Equal(t, "admin", resp.Data.Admin["username"])
		assert.NotContains(t, resp.Data.Admin, "password_hash")
	})
}

func TestHandler_Stats(t *testing.T) {
	repo := newMemRepo()
	repo.stats = &Stats{
		Users:     UserStats{Total: 3, NewByDay: []DayCount{{Date: "2026-03-14", Count: 2}}},
		Purchases: PurchaseStats{Total: 2},
		Revenue:   RevenueStats{Total: 39900, Pending: 74900, ByPackage: []PackageStats{{Package: "standard", Count: 1, Revenue: 39900}}},
		Requests:  RequestStats{FreeUsed: 7, PaidRemaining: 40},
	}
	svc, _ := newTestService(repo)
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Data.Users.Total)
	assert.Equal(t, "rub", resp.Data.Revenue.Currency)
	assert.Equal(t, int64(40), resp.Data.Requests.PaidRemaining)
	require.Len(t, resp.Data.Revenue.ByPackage, 1)

	repo.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
