package store

import (
	"database/sql"
	"time"
)

// SetSnapshot upserts the serialized session snapshot for a review.
func (s *Store) SetSnapshot(reviewID int64, data string) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (review_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(review_id) DO UPDATE SET data = ?, updated_at = ?`,
		reviewID, data, time.Now(), data, time.Now(),
	)
	return err
}

// GetSnapshot returns the serialized snapshot for a review.
// Returns empty string and nil error if no snapshot exists.
func (s *Store) GetSnapshot(reviewID int64) (string, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE review_id = ?`, reviewID).Scan(&data)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return data, err
}

// DeleteSnapshot removes the snapshot for a review.
func (s *Store) DeleteSnapshot(reviewID int64) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE review_id = ?`, reviewID)
	return err
}
