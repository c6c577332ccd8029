package auth

import (
	"errors"
	"net/http"

	"github.com/aichat-platform/aichat/internal/api"
	"github.com/aichat-platform/aichat/internal/ledger"
)

// ResolveAccount picks the ledger account for a request. Claims set by
// OptionalMiddleware win; otherwise guestID names a guest account.
func ResolveAccount(r *http.Request, guestID string) (ledger.AccountRef, error) {
	if claims := GetUserClaims(r.Context()); claims != nil {
		if claims.Role != RoleUser {
			return ledger.AccountRef{}, api.ErrForbidden
		}
		ref := ledger.UserRef(claims.UserID)
		if err := ref.Validate(); err != nil {
			return ledger.AccountRef{}, api.ErrInvalidToken
		}
		return ref, nil
	}

	if guestID == "" {
		return ledger.AccountRef{}, api.ErrIdentityRequired
	}
	ref := ledger.GuestRef(guestID)
	if err := ref.Validate(); err != nil {
		if errors.Is(err, ledger.ErrInvalidAccount) {
			return ledger.AccountRef{}, api.NewBadRequestError(err.Error())
		}
		return ledger.AccountRef{}, err
	}
	return ref, nil
}
