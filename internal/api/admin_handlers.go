package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/caxulex/shiftcore/internal/api/helpers"
	"github.com/caxulex/shiftcore/internal/api/middleware"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
)

// AdminHandler implements company-admin-scoped provisioning operations
// that fall outside the Timer Engine's time-tracking surface.
type AdminHandler struct {
	store store.Store
}

func NewAdminHandler(st store.Store) *AdminHandler {
	return &AdminHandler{store: st}
}

type createInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createInvitationResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateInvitation lets a company admin pre-provision a user for their
// own tenant. The plaintext token is returned once and never stored;
// only its hash is persisted, the same pattern Identity uses for
// refresh tokens.
func (h *AdminHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())
	companyID := caller.Scope()
	if companyID == nil {
		helpers.RespondError(w, http.StatusForbidden, "invitations must be scoped to a company")
		return
	}

	var req createInvitationRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		helpers.RespondError(w, http.StatusBadRequest, "email is required")
		return
	}
	role := store.Role(req.Role)
	if role == "" {
		role = store.RoleRegularUser
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		writeDomainError(w, r, err)
		return
	}
	token := hex.EncodeToString(raw)
	expiresAt := time.Now().Add(7 * 24 * time.Hour)

	inv := store.Invitation{
		ID:        uuid.New(),
		CompanyID: *companyID,
		Email:     req.Email,
		Role:      role,
		TokenHash: hashInvitationToken(token),
		InvitedBy: caller.UserID,
		ExpiresAt: expiresAt,
	}
	if err := h.store.CreateInvitation(r.Context(), inv); err != nil {
		writeDomainError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusCreated, createInvitationResponse{Token: token, ExpiresAt: expiresAt})
}
