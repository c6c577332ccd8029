package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/ledger"
)

func TestResolveAccount(t *testing.T) {
	const uid = "6f1c3b8e-0d5a-4c57-9d1e-2b8f0c7a9e11"

	t.Run("user claims win over guest id", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r = r.WithContext(WithClaims(r.Context(), &AccessClaims{UserID: uid, Role: RoleUser}))

		ref, err := ResolveAccount(r, "guest_ignored")
		require.NoError(t, err)
		assert.Equal(t, ledger.UserRef(uid), ref)
	})

	t.Run("admin token is not a chat account", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r = r.WithContext(WithClaims(r.Context(), &AccessClaims{UserID: uid, Role: RoleAdmin}))

		_, err := ResolveAccount(r, "")
		assert.ErrorIs(t, err, api.ErrForbidden)
	})

	t.Run("guest", func(t *testing.T) {
		ref, err := ResolveAccount(httptest.NewRequest("GET", "/", nil), "guest_123abc")
		require.NoError(t, err)
		assert.Equal(t, ledger.GuestRef("guest_123abc"), ref)
	})

	t.Run("malformed guest id", func(t *testing.T) {
		_, err := ResolveAccount(httptest.NewRequest("GET", "/", nil), "visitor")
		var appErr *api.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 400, appErr.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := ResolveAccount(httptest.NewRequest("GET", "/", nil), "")
		assert.ErrorIs(t, err, api.ErrIdentityRequired)
	})
}
