package handler

import (
	"errors"
	"log/slog"
	"net/http"

	appI18n "reviewdeck/internal/i18n"
	"reviewdeck/internal/model"
	"reviewdeck/internal/session"
)

type markRequest struct {
	QuestionID int64           `json:"questionId" validate:"required,min=1"`
	Judgement  model.Judgement `json:"judgement" validate:"required"`
}

type navigateRequest struct {
	Delta int `json:"delta"`
}

type fieldsRequest struct {
	PracticalMark *float64 `json:"practicalMark" validate:"omitempty,min=0,max=10"`
	PracticalLink *string  `json:"practicalLink"`
	Notes         *string  `json:"notes"`
	Code          *string  `json:"code"`
	Language      *string  `json:"language" validate:"omitempty,oneof=c java"`
}

// liveSession resolves the machine for the review in the URL. It never
// opens one implicitly; the console opens explicitly so the timer does not
// start from a background poll.
func (h *Handler) liveSession(w http.ResponseWriter, r *http.Request) (*session.Machine, bool) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return nil, false
	}
	m, ok := h.sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no live grading session for this review")
		return nil, false
	}
	return m, true
}

// sessionError maps engine guard failures onto the API error envelope.
// Guard failures are recoverable: the response carries enough for the
// console to redirect the proctor to the offending input.
func sessionError(w http.ResponseWriter, r *http.Request, err error) {
	var unmarked *session.UnmarkedQuestionError
	switch {
	case errors.As(err, &unmarked):
		respond(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  appI18n.Td(r.Context(), "MarkQuestionFirst", map[string]any{"Number": unmarked.Index + 1}),
			"cursor": unmarked.Index,
		})
	case errors.Is(err, session.ErrMissingPracticalLink):
		respond(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     appI18n.T(r.Context(), "MissingPracticalLink"),
			"linkError": true,
		})
	case errors.Is(err, session.ErrSessionClosed):
		respondError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionClosed"))
	case errors.Is(err, session.ErrWrongPhase):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrReviewFinished):
		respondError(w, http.StatusConflict, appI18n.T(r.Context(), "ReviewAlreadyFinalized"))
	case errors.Is(err, session.ErrUnknownQuestion):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		storeError(w, r, err, "ReviewNotFound")
	}
}

// sessionPayload is the standard session response: the machine view plus
// the module's questions in cursor order.
func sessionPayload(m *session.Machine) map[string]any {
	questions := m.Questions()
	if questions == nil {
		questions = []model.Question{}
	}
	return map[string]any{
		"session":   m.View(),
		"questions": questions,
	}
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return
	}
	m, err := h.sessions.Open(id)
	if err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return
	}
	// The snapshot stays, so the session resumes on next open.
	h.sessions.Release(id)
	respond(w, http.StatusOK, map[string]any{"message": "session released"})
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req markRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := m.Mark(req.QuestionID, req.Judgement); err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := m.Navigate(req.Delta); err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	if err := m.TogglePause(); err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	var req fieldsRequest
	if !h.decode(w, r, &req) {
		return
	}

	apply := func(err error) bool {
		if err != nil {
			sessionError(w, r, err)
			return false
		}
		return true
	}
	if req.PracticalMark != nil && !apply(m.SetPracticalMark(*req.PracticalMark)) {
		return
	}
	if req.PracticalLink != nil && !apply(m.SetPracticalLink(*req.PracticalLink)) {
		return
	}
	if req.Notes != nil && !apply(m.SetNotes(*req.Notes)) {
		return
	}
	if req.Language != nil && !apply(m.SetLanguage(*req.Language)) {
		return
	}
	if req.Code != nil && !apply(m.SetCode(*req.Code)) {
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleRunCode(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	output, err := m.RunCode()
	if err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"output": output})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	if err := m.Submit(); err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	if err := m.Reopen(); err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, sessionPayload(m))
}

func (h *Handler) handleFinalizeReport(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	score, err := m.FinalizeReport()
	if err != nil {
		sessionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"session": m.View(),
		"score":   score,
	})
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.liveSession(w, r)
	if !ok {
		return
	}
	review, err := m.Close(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, session.ErrWrongPhase) {
			sessionError(w, r, err)
			return
		}
		// Persistence failure: nothing was cleared, the close is retryable.
		slog.Error("finalize failed", "error", err)
		respondError(w, http.StatusBadGateway, appI18n.T(r.Context(), "SaveError"))
		return
	}
	respond(w, http.StatusOK, review)
}
