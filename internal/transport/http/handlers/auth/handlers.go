package authhandler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"dpdp/internal/domain/auth"
	"dpdp/internal/transport/http/api"
	"dpdp/internal/transport/http/middleware"
	"dpdp/internal/transport/http/shared"
)

const (
	sessionTTL = 8 * time.Hour
	mfaIssuer  = "DPDP Consent Console"
)

// Users is the slice of the auth store the login flow needs.
type Users interface {
	FindActiveUserByEmail(ctx context.Context, email string) (auth.AuthUser, error)
	CreateSession(ctx context.Context, sessionID, userID, tokenHash string, expires time.Time) error
	UpdateLastLogin(ctx context.Context, userID string) error
	RevokeSession(ctx context.Context, userID, sessionID string) error
	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	GetMFASecret(ctx context.Context, userID string) ([]byte, error)
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
}

type Sealer interface {
	Configured() bool
	SealString(value string) ([]byte, error)
	OpenString(value []byte) (string, error)
}

type Handler struct {
	Users  Users
	Secret string
	Crypto Sealer
	now    func() time.Time
}

func NewHandler(users Users, secret string, crypto Sealer) *Handler {
	return &Handler{Users: users, Secret: secret, Crypto: crypto, now: time.Now}
}

// RegisterRoutes mounts login publicly; logout and MFA need a session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/auth/logout", h.HandleLogout)
		r.Post("/auth/mfa/setup", h.HandleMFASetup)
		r.Post("/auth/mfa/enable", h.HandleMFAEnable)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	user, err := h.Users.FindActiveUserByEmail(r.Context(), strings.TrimSpace(payload.Email))
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}
	if err := auth.CheckPassword(user.Password, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}

	if user.MFAEnabled {
		if payload.MFACode == "" {
			api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", reqID)
			return
		}
		secret, err := h.openSecret(user.MFASecretEn)
		if err != nil {
			api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa configuration", reqID)
			return
		}
		if secret == "" || !totp.Validate(payload.MFACode, secret) {
			api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", reqID)
			return
		}
	}

	sessionID := uuid.NewString()
	expires := h.now().Add(sessionTTL)
	if err := h.Users.CreateSession(r.Context(), sessionID, user.ID, auth.HashToken(sessionID), expires); err != nil {
		slog.Warn("session create failed", "userId", user.ID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", reqID)
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{
		UserID:    user.ID,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
	}, sessionTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}

	if err := h.Users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, map[string]any{
		"token":     token,
		"expiresAt": expires.UTC(),
		"user":      map[string]string{"id": user.ID, "email": user.Email, "roleId": user.RoleID, "role": user.RoleName},
	}, reqID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if user.SessionID != "" {
		if err := h.Users.RevokeSession(r.Context(), user.UserID, user.SessionID); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMFASetup(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	if h.Crypto == nil || !h.Crypto.Configured() {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", reqID)
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: user.UserID,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to generate mfa secret", reqID)
		return
	}
	sealed, err := h.Crypto.SealString(key.Secret())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to store mfa secret", reqID)
		return
	}
	if err := h.Users.UpdateMFASecret(r.Context(), user.UserID, sealed); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_setup_failed", "failed to store mfa secret", reqID)
		return
	}

	api.Success(w, map[string]string{"secret": key.Secret(), "otpauthUrl": key.URL()}, reqID)
}

func (h *Handler) HandleMFAEnable(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	if h.Crypto == nil || !h.Crypto.Configured() {
		api.Fail(w, http.StatusBadRequest, "mfa_unavailable", "mfa requires encryption key", reqID)
		return
	}

	var payload mfaCodeRequest
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	sealed, err := h.Users.GetMFASecret(r.Context(), user.UserID)
	if err != nil || len(sealed) == 0 {
		api.Fail(w, http.StatusBadRequest, "mfa_missing", "mfa setup required", reqID)
		return
	}
	secret, err := h.Crypto.OpenString(sealed)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa secret", reqID)
		return
	}
	if !totp.Validate(payload.Code, secret) {
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", reqID)
		return
	}

	if err := h.Users.SetMFAEnabled(r.Context(), user.UserID, true); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_enable_failed", "failed to enable mfa", reqID)
		return
	}
	api.Success(w, map[string]string{"status": "enabled"}, reqID)
}

// openSecret reads a stored TOTP secret. Without an encryption key the
// column holds the secret as plain bytes.
func (h *Handler) openSecret(stored []byte) (string, error) {
	if h.Crypto != nil && h.Crypto.Configured() {
		return h.Crypto.OpenString(stored)
	}
	return string(stored), nil
}
