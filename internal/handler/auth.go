package handler

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "reviewdeck/internal/i18n"
	"reviewdeck/internal/model"
)

const sessionCookieName = "session"

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !user.Active {
		respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginError"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginError"))
		return
	}

	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
	respond(w, http.StatusOK, map[string]any{
		"username":    user.Username,
		"displayName": user.DisplayName,
		"role":        user.Role,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
	respond(w, http.StatusOK, nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	respond(w, http.StatusOK, map[string]any{
		"username":    user.Username,
		"displayName": user.DisplayName,
		"role":        user.Role,
	})
}

// requireAuth gates every API route on an authenticated principal.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if authSess == nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil || user == nil || !user.Active {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}
