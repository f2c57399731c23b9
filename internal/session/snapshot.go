package session

import (
	"encoding/json"
	"log/slog"
)

// SnapshotKV is the durable key-value storage backing session snapshots,
// keyed by review id. Empty string means no snapshot.
type SnapshotKV interface {
	GetSnapshot(reviewID int64) (string, error)
	SetSnapshot(reviewID int64, data string) error
	DeleteSnapshot(reviewID int64) error
}

// Snapshots persists one session state per review so grading survives a
// reload. It is deliberately fail-soft: a malformed snapshot reads as
// absent, and write errors are logged and swallowed so persistence never
// blocks the grading flow. Submitted results never live here; once
// finalized they belong to the review record.
type Snapshots struct {
	kv SnapshotKV
}

// NewSnapshots wraps a key-value store into a snapshot store.
func NewSnapshots(kv SnapshotKV) *Snapshots {
	return &Snapshots{kv: kv}
}

// Load returns the saved state for a review and true, or the default state
// and false when no well-formed snapshot exists.
func (s *Snapshots) Load(reviewID int64, questionCount int) (State, bool) {
	raw, err := s.kv.GetSnapshot(reviewID)
	if err != nil {
		slog.Warn("snapshot load failed", "review_id", reviewID, "error", err)
		return DefaultState(), false
	}
	if raw == "" {
		return DefaultState(), false
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		slog.Debug("discarding malformed snapshot", "review_id", reviewID, "error", err)
		return DefaultState(), false
	}
	st.normalize(questionCount)
	return st, true
}

// Save overwrites the snapshot for a review. Best effort.
func (s *Snapshots) Save(reviewID int64, st State) {
	raw, err := json.Marshal(st)
	if err != nil {
		slog.Error("snapshot encode failed", "review_id", reviewID, "error", err)
		return
	}
	if err := s.kv.SetSnapshot(reviewID, string(raw)); err != nil {
		slog.Warn("snapshot save failed", "review_id", reviewID, "error", err)
	}
}

// Clear removes the snapshot for a review. Called exactly once, at
// successful finalization or confirmed external finalization.
func (s *Snapshots) Clear(reviewID int64) {
	if err := s.kv.DeleteSnapshot(reviewID); err != nil {
		slog.Warn("snapshot clear failed", "review_id", reviewID, "error", err)
	}
}
