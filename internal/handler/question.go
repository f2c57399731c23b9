package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	appI18n "reviewdeck/internal/i18n"
	"reviewdeck/internal/model"
)

type createQuestionRequest struct {
	Text     string `json:"text" validate:"required"`
	ModuleID int    `json:"moduleId" validate:"required,min=1"`
	Answer   string `json:"answer"`
	// System questions are ownerless and visible to all graders.
	System bool `json:"system"`
}

type updateQuestionRequest struct {
	Text     *string `json:"text" validate:"omitempty,min=1"`
	ModuleID *int    `json:"moduleId" validate:"omitempty,min=1"`
	Answer   *string `json:"answer"`
}

type seedQuestion struct {
	Text     string `json:"text"`
	ModuleID int    `json:"moduleId"`
	Answer   string `json:"answer"`
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	var (
		questions []model.Question
		err       error
	)
	if raw := r.URL.Query().Get("moduleId"); raw != "" {
		moduleID, convErr := strconv.Atoi(raw)
		if convErr != nil || moduleID < 1 {
			respondError(w, http.StatusBadRequest, "invalid moduleId")
			return
		}
		questions, err = h.store.ListQuestionsByModule(moduleID)
	} else {
		questions, err = h.store.ListQuestions()
	}
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	respond(w, http.StatusOK, questions)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := model.UserFromContext(r.Context())

	q := model.Question{
		ModuleID: req.ModuleID,
		Text:     req.Text,
		Answer:   req.Answer,
	}
	if req.System {
		if user.Role != model.UserRoleAdmin {
			respondError(w, http.StatusForbidden, appI18n.T(r.Context(), "Forbidden"))
			return
		}
	} else {
		q.OwnerID = &user.ID
	}

	id, err := h.store.InsertQuestion(q)
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	created, err := h.store.GetQuestion(id)
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	respond(w, http.StatusCreated, created)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "questionID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid question ID")
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	respond(w, http.StatusOK, q)
}

// editableQuestion loads the question and enforces the ownership rule:
// owned questions are mutable by their owner, system questions by admins.
func (h *Handler) editableQuestion(w http.ResponseWriter, r *http.Request) (model.Question, bool) {
	id, ok := urlID(r, "questionID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid question ID")
		return model.Question{}, false
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return model.Question{}, false
	}
	if !q.EditableBy(model.UserFromContext(r.Context())) {
		respondError(w, http.StatusForbidden, appI18n.T(r.Context(), "Forbidden"))
		return model.Question{}, false
	}
	return q, true
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.editableQuestion(w, r)
	if !ok {
		return
	}
	var req updateQuestionRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.store.UpdateQuestion(q.ID, model.QuestionPatch{
		Text:     req.Text,
		ModuleID: req.ModuleID,
		Answer:   req.Answer,
	})
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := h.editableQuestion(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteQuestion(q.ID); err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	respond(w, http.StatusOK, map[string]any{"message": "question deleted"})
}

// handleSeedQuestions bulk-imports system questions. It is a first-run
// convenience: a non-empty pool skips the import rather than duplicating it.
func (h *Handler) handleSeedQuestions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if user.Role != model.UserRoleAdmin {
		respondError(w, http.StatusForbidden, appI18n.T(r.Context(), "Forbidden"))
		return
	}

	var batch []seedQuestion
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	count, err := h.store.QuestionCount()
	if err != nil {
		storeError(w, r, err, "QuestionNotFound")
		return
	}
	if count > 0 {
		respond(w, http.StatusOK, map[string]any{"message": "question pool already populated, skipping import", "imported": 0})
		return
	}

	imported := 0
	for _, sq := range batch {
		if sq.Text == "" || sq.ModuleID < 1 {
			continue
		}
		if _, err := h.store.InsertQuestion(model.Question{
			ModuleID: sq.ModuleID,
			Text:     sq.Text,
			Answer:   sq.Answer,
		}); err != nil {
			storeError(w, r, err, "QuestionNotFound")
			return
		}
		imported++
	}
	respond(w, http.StatusOK, map[string]any{"message": "import completed", "imported": imported})
}

func (h *Handler) handleDraftGuidance(w http.ResponseWriter, r *http.Request) {
	if h.llm == nil {
		respondError(w, http.StatusServiceUnavailable, "guidance drafting is not configured")
		return
	}
	q, ok := h.editableQuestion(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	draft, err := h.llm.DraftGuidance(ctx, q)
	if err != nil {
		respondError(w, http.StatusBadGateway, "guidance drafting failed")
		return
	}
	respond(w, http.StatusOK, map[string]any{"draft": draft})
}
