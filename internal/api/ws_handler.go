package api

import (
	"net/http"

	"github.com/caxulex/shiftcore/internal/access"
	"github.com/caxulex/shiftcore/internal/api/helpers"
	"github.com/caxulex/shiftcore/internal/realtime"
	"github.com/google/uuid"
)

// WSHandler upgrades an authenticated request to the Broadcast Layer's
// persistent connection.
type WSHandler struct {
	guard    *access.Guard
	registry *realtime.Registry
}

func NewWSHandler(guard *access.Guard, registry *realtime.Registry) *WSHandler {
	return &WSHandler{guard: guard, registry: registry}
}

// Upgrade resolves the access token carried in the `token` query
// parameter (a websocket handshake cannot carry an Authorization header
// from a browser) and hands the connection off to the Registry.
func (h *WSHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	caller, err := h.guard.Resolve(r.Context(), token)
	if err != nil {
		helpers.RespondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var companyID uuid.UUID
	if caller.CompanyID != nil {
		companyID = *caller.CompanyID
	}

	if _, err := h.registry.Accept(w, r, caller.UserID, companyID, caller.Role, caller.JTI); err != nil {
		return
	}
}
