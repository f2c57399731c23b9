package session

import (
	"context"
	"fmt"
	"log/slog"

	"reviewdeck/internal/model"
)

// ReviewSink is the slice of the relational store the finalizer writes to.
type ReviewSink interface {
	FinalizeReview(id int64, rep model.FinalReport) (model.Review, error)
}

// Finalizer commits the terminal verdict of a grading session as a single
// atomic review update, then tears down the transient snapshot. A failed
// commit clears nothing, so the close can be retried without data loss.
type Finalizer struct {
	reviews   ReviewSink
	snapshots *Snapshots
}

// NewFinalizer builds a finalizer over the review store and snapshot store.
func NewFinalizer(reviews ReviewSink, snaps *Snapshots) *Finalizer {
	return &Finalizer{reviews: reviews, snapshots: snaps}
}

// Commit writes the final report to the review record and, on success only,
// clears the local snapshot.
func (f *Finalizer) Commit(ctx context.Context, reviewID int64, rep model.FinalReport) (model.Review, error) {
	if err := ctx.Err(); err != nil {
		return model.Review{}, err
	}
	review, err := f.reviews.FinalizeReview(reviewID, rep)
	if err != nil {
		return model.Review{}, fmt.Errorf("finalize review %d: %w", reviewID, err)
	}
	f.snapshots.Clear(reviewID)
	slog.Info("review finalized",
		"review_id", reviewID,
		"status", rep.Status,
		"composite", rep.Scores.Total,
	)
	return review, nil
}
