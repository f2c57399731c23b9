package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"reviewdeck/internal/model"
)

const reviewCols = `id, student_name, batch, module_id, status, scheduled_at, scores, notes, session_data, created_at, updated_at`

func scanReview(row interface{ Scan(...any) error }) (model.Review, error) {
	var r model.Review
	var scores, sessionData sql.NullString
	err := row.Scan(&r.ID, &r.StudentName, &r.Batch, &r.ModuleID, &r.Status,
		&r.ScheduledAt, &scores, &r.Notes, &sessionData, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	// Corrupt JSON in either blob column is ignored rather than failing the
	// read; these fields are display-only.
	if scores.Valid && scores.String != "" {
		var b model.ScoreBreakdown
		if json.Unmarshal([]byte(scores.String), &b) == nil {
			r.Scores = &b
		}
	}
	if sessionData.Valid && sessionData.String != "" {
		var d map[string]any
		if json.Unmarshal([]byte(sessionData.String), &d) == nil {
			r.SessionData = d
		}
	}
	return r, nil
}

// CreateReview schedules a new review. Status always starts as pending.
func (s *Store) CreateReview(r model.Review) (model.Review, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO reviews (student_name, batch, module_id, status, scheduled_at, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', ?, ?)`,
		r.StudentName, r.Batch, r.ModuleID, model.ReviewPending, r.ScheduledAt, now, now,
	)
	if err != nil {
		return model.Review{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Review{}, err
	}
	return s.GetReview(id)
}

// GetReview returns a review by ID.
func (s *Store) GetReview(id int64) (model.Review, error) {
	return scanReview(s.db.QueryRow(`SELECT `+reviewCols+` FROM reviews WHERE id = ?`, id))
}

// ListReviews returns all reviews, newest scheduled first.
func (s *Store) ListReviews() ([]model.Review, error) {
	rows, err := s.db.Query(`SELECT ` + reviewCols + ` FROM reviews ORDER BY scheduled_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reviews []model.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// UpdateReview applies an administrative edit (name/batch/module/schedule).
// Nil patch fields keep the existing value.
func (s *Store) UpdateReview(id int64, p model.ReviewPatch) (model.Review, error) {
	_, err := s.db.Exec(
		`UPDATE reviews SET
			student_name = COALESCE(?, student_name),
			batch = COALESCE(?, batch),
			module_id = COALESCE(?, module_id),
			scheduled_at = COALESCE(?, scheduled_at),
			updated_at = ?
		 WHERE id = ?`,
		p.StudentName, p.Batch, p.ModuleID, p.ScheduledAt, time.Now(), id,
	)
	if err != nil {
		return model.Review{}, err
	}
	return s.GetReview(id)
}

// SetReviewStatus updates only the status column.
func (s *Store) SetReviewStatus(id int64, status model.ReviewStatus) error {
	res, err := s.db.Exec(`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FinalizeReview commits the terminal verdict as a single atomic update and
// returns the updated record. sql.ErrNoRows means the review is gone.
func (s *Store) FinalizeReview(id int64, rep model.FinalReport) (model.Review, error) {
	scores, err := json.Marshal(rep.Scores)
	if err != nil {
		return model.Review{}, err
	}
	sessionData, err := json.Marshal(rep.SessionData)
	if err != nil {
		return model.Review{}, err
	}
	res, err := s.db.Exec(
		`UPDATE reviews SET status = ?, scores = ?, notes = ?, session_data = ?, updated_at = ? WHERE id = ?`,
		rep.Status, string(scores), rep.Notes, string(sessionData), time.Now(), id,
	)
	if err != nil {
		return model.Review{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Review{}, err
	}
	if n == 0 {
		return model.Review{}, sql.ErrNoRows
	}
	return s.GetReview(id)
}

// DeleteReview removes a review. sql.ErrNoRows when no such row existed.
func (s *Store) DeleteReview(id int64) error {
	res, err := s.db.Exec(`DELETE FROM reviews WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
