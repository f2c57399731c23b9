package handler

import (
	"net/http"
	"time"

	"reviewdeck/internal/model"
)

type createReviewRequest struct {
	StudentName string `json:"studentName" validate:"required,min=2"`
	Batch       string `json:"batch" validate:"required"`
	ModuleID    int    `json:"moduleId" validate:"required,min=1"`
	ScheduledAt string `json:"scheduledAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type updateReviewRequest struct {
	StudentName *string `json:"studentName" validate:"omitempty,min=2"`
	Batch       *string `json:"batch" validate:"omitempty,min=1"`
	ModuleID    *int    `json:"moduleId" validate:"omitempty,min=1"`
	ScheduledAt *string `json:"scheduledAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (h *Handler) handleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.store.ListReviews()
	if err != nil {
		storeError(w, r, err, "ReviewNotFound")
		return
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	respond(w, http.StatusOK, reviews)
}

func (h *Handler) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	scheduledAt := time.Now()
	if req.ScheduledAt != "" {
		// Format already validated.
		scheduledAt, _ = time.Parse(time.RFC3339, req.ScheduledAt)
	}

	review, err := h.store.CreateReview(model.Review{
		StudentName: req.StudentName,
		Batch:       req.Batch,
		ModuleID:    req.ModuleID,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		storeError(w, r, err, "ReviewNotFound")
		return
	}
	respond(w, http.StatusCreated, review)
}

func (h *Handler) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return
	}
	review, err := h.store.GetReview(id)
	if err != nil {
		storeError(w, r, err, "ReviewNotFound")
		return
	}
	respond(w, http.StatusOK, review)
}

func (h *Handler) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return
	}
	var req updateReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := model.ReviewPatch{
		StudentName: req.StudentName,
		Batch:       req.Batch,
		ModuleID:    req.ModuleID,
	}
	if req.ScheduledAt != nil {
		t, _ := time.Parse(time.RFC3339, *req.ScheduledAt)
		patch.ScheduledAt = &t
	}

	review, err := h.store.UpdateReview(id, patch)
	if err != nil {
		storeError(w, r, err, "ReviewNotFound")
		return
	}
	respond(w, http.StatusOK, review)
}

func (h *Handler) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "reviewID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid review ID")
		return
	}
	// A live grading session for the review dies with it.
	h.sessions.Release(id)
	if err := h.store.DeleteReview(id); err != nil {
		storeError(w, r, err, "ReviewNotFound")
		return
	}
	respond(w, http.StatusOK, map[string]any{"message": "review deleted"})
}
