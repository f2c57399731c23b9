package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appI18n "reviewdeck/internal/i18n"
	"reviewdeck/internal/llm"
	"reviewdeck/internal/session"
	"reviewdeck/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store         *store.Store
	sessions      *session.Manager
	llm           *llm.Client // nil when guidance drafting is not configured
	validate      *validator.Validate
	secureCookies bool
}

// New creates a new Handler.
func New(s *store.Store, sessions *session.Manager, llmClient *llm.Client, secureCookies bool) *Handler {
	return &Handler{
		store:         s,
		sessions:      sessions,
		llm:           llmClient,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		secureCookies: secureCookies,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Route("/api", func(api chi.Router) {
		api.Use(h.requireAuth)
		api.Get("/me", h.handleMe)

		api.Route("/reviews", func(rr chi.Router) {
			rr.Get("/", h.handleListReviews)
			rr.Post("/", h.handleCreateReview)
			rr.Route("/{reviewID}", func(one chi.Router) {
				one.Get("/", h.handleGetReview)
				one.Patch("/", h.handleUpdateReview)
				one.Delete("/", h.handleDeleteReview)
				one.Route("/session", func(gs chi.Router) {
					gs.Post("/", h.handleOpenSession)
					gs.Get("/", h.handleGetSession)
					gs.Delete("/", h.handleAbandonSession)
					gs.Post("/mark", h.handleMark)
					gs.Post("/navigate", h.handleNavigate)
					gs.Post("/pause", h.handleTogglePause)
					gs.Post("/fields", h.handleUpdateFields)
					gs.Post("/run", h.handleRunCode)
					gs.Post("/submit", h.handleSubmit)
					gs.Post("/reopen", h.handleReopen)
					gs.Post("/finalize", h.handleFinalizeReport)
					gs.Post("/close", h.handleCloseSession)
				})
			})
		})

		api.Route("/questions", func(qr chi.Router) {
			qr.Get("/", h.handleListQuestions)
			qr.Post("/", h.handleCreateQuestion)
			qr.Post("/seed", h.handleSeedQuestions)
			qr.Route("/{questionID}", func(one chi.Router) {
				one.Get("/", h.handleGetQuestion)
				one.Patch("/", h.handleUpdateQuestion)
				one.Delete("/", h.handleDeleteQuestion)
				one.Post("/guidance", h.handleDraftGuidance)
			})
		})
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]any{"error": msg})
}

// decode parses the JSON body into dst and runs struct validation,
// writing the error response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			respond(w, http.StatusBadRequest, map[string]any{
				"error":   appI18n.T(r.Context(), "ValidationError"),
				"details": details,
			})
			return false
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// storeError maps store failures onto the API error envelope.
func storeError(w http.ResponseWriter, r *http.Request, err error, notFoundMsgID string) {
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), notFoundMsgID))
		return
	}
	slog.Error("store error", "error", err)
	respondError(w, http.StatusInternalServerError, "internal error")
}
