package api

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caxulex/shiftcore/internal/api/helpers"
	"github.com/caxulex/shiftcore/internal/api/middleware"
	"github.com/caxulex/shiftcore/internal/audit"
	"github.com/caxulex/shiftcore/internal/identity"
	"github.com/caxulex/shiftcore/internal/loginsec"
	"github.com/caxulex/shiftcore/internal/store"
	"github.com/google/uuid"
)

// AuthHandler implements the Login/Register/Refresh/Logout/Me surface
// over Identity, Login Security and the Store.
type AuthHandler struct {
	identity               *identity.Service
	loginsec               *loginsec.Guard
	store                  store.Store
	audit                  audit.Logger
	logger                 *slog.Logger
	allowPublicRegistration bool
}

func NewAuthHandler(identitySvc *identity.Service, loginsecGuard *loginsec.Guard, st store.Store, auditLogger audit.Logger, allowPublicRegistration bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identitySvc, loginsec: loginsecGuard, store: st, audit: auditLogger, allowPublicRegistration: allowPublicRegistration, logger: logger}
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	CompanySlug    string `json:"company_slug"`
	InvitationToken string `json:"invitation_token"`
}

// Register provisions a new user, either by redeeming an invitation
// (joins the inviting company with the invited role) or, when the
// invitation_token is absent, by self-service signup that also
// provisions a brand-new company with the caller as company_admin.
// Self-service signup is rejected unless public registration is
// enabled, keeping invitation-only onboarding the default.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		helpers.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	passwordHash, err := h.identity.Hash(req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var user store.User
	if req.InvitationToken != "" {
		user, err = h.registerViaInvitation(r, req, passwordHash)
	} else {
		if !h.allowPublicRegistration {
			helpers.RespondError(w, http.StatusForbidden, "public registration is disabled; an invitation is required")
			return
		}
		user, err = h.registerNewCompany(r, req, passwordHash)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	access, refresh, err := h.identity.IssuePair(r.Context(), user)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.audit.Log(r.Context(), user.ID, audit.EventUserRegistered, user.Email, nil)
	helpers.RespondJSON(w, http.StatusCreated, tokenPairResponse{AccessToken: access, RefreshToken: refresh, User: toUserResponse(user)})
}

func hashInvitationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (h *AuthHandler) registerViaInvitation(r *http.Request, req registerRequest, passwordHash string) (store.User, error) {
	tokenHash := hashInvitationToken(req.InvitationToken)
	inv, err := h.store.GetInvitationByTokenHash(r.Context(), tokenHash)
	if err != nil {
		return store.User{}, err
	}
	if time.Now().After(inv.ExpiresAt) {
		return store.User{}, store.ErrNotFound
	}

	companyID := inv.CompanyID
	user := store.User{
		ID:           uuid.New(),
		CompanyID:    &companyID,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         inv.Role,
		IsActive:     true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		return store.User{}, err
	}
	_ = h.store.DeleteInvitation(r.Context(), tokenHash)
	return user, nil
}

func (h *AuthHandler) registerNewCompany(r *http.Request, req registerRequest, passwordHash string) (store.User, error) {
	slug := req.CompanySlug
	if slug == "" {
		slug = strings.ReplaceAll(req.Email, "@", "-at-")
	}

	company := store.Company{
		ID:          uuid.New(),
		Slug:        slug,
		Status:      store.CompanyTrial,
		MaxUsers:    25,
		MaxProjects: 25,
	}
	if err := h.store.CreateCompany(r.Context(), company); err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:           uuid.New(),
		CompanyID:    &company.ID,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         store.RoleCompanyAdmin,
		IsActive:     true,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
}

func toUserResponse(u store.User) userResponse {
	return userResponse{ID: u.ID, CompanyID: u.CompanyID, Email: u.Email, Name: u.Name, Role: string(u.Role)}
}

type tokenPairResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user,omitempty"`
}

// Login verifies credentials, enforces the login-lockout window, and on
// success issues a fresh access/refresh pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ip := helpers.GetRealIP(r).String()

	locked, retryAfter, err := h.loginsec.IsLocked(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if locked {
		w.Header().Set("Retry-After", retryAfter.String())
		writeDomainError(w, r, loginsec.ErrAccountLocked)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !user.IsActive {
		_ = h.loginsec.Record(r.Context(), req.Email, ip, loginsec.OutcomeFail)
		h.audit.Log(r.Context(), uuid.Nil, audit.EventLoginFailed, req.Email, map[string]string{"ip": ip})
		writeDomainError(w, r, identity.ErrBadCredentials)
		return
	}

	ok, upgradedHash, err := h.identity.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !ok {
		_ = h.loginsec.Record(r.Context(), req.Email, ip, loginsec.OutcomeFail)
		h.audit.Log(r.Context(), user.ID, audit.EventLoginFailed, req.Email, map[string]string{"ip": ip})
		writeDomainError(w, r, identity.ErrBadCredentials)
		return
	}
	_ = upgradedHash // transparent rehash persistence happens via the user-profile update path, not the hot login path

	_ = h.loginsec.Record(r.Context(), req.Email, ip, loginsec.OutcomeSuccess)

	access, refresh, err := h.identity.IssuePair(r.Context(), user)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.audit.Log(r.Context(), user.ID, audit.EventLoginSuccess, req.Email, map[string]string{"ip": ip})
	helpers.RespondJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh, User: toUserResponse(user)})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token, revoking the one presented.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	access, refresh, err := h.identity.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	h.audit.Log(r.Context(), uuid.Nil, audit.EventTokenRotated, "", nil)
	helpers.RespondJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented refresh token, if any; it never fails —
// an absent or already-revoked token still yields a successful logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = helpers.DecodeJSON(r, &req)

	if req.RefreshToken != "" {
		if claims, err := h.identity.Verify(r.Context(), req.RefreshToken, identity.KindRefresh); err == nil {
			remaining := time.Until(claims.ExpiresAt.Time)
			if remaining < 0 {
				remaining = 0
			}
			_ = h.identity.Revoke(r.Context(), claims.JTI, remaining)
			h.audit.Log(r.Context(), uuid.Nil, audit.EventLogout, claims.JTI, nil)
		}
	}

	helpers.RespondJSON(w, http.StatusOK, map[string]string{})
}

// Me returns the caller resolved by RequireAuth, re-read from the Store
// for current role/active-status.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetCaller(r.Context())

	user, err := h.store.GetUser(r.Context(), caller.Scope(), caller.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	helpers.RespondJSON(w, http.StatusOK, toUserResponse(user))
}
