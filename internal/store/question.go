package store

import (
	"database/sql"
	"time"

	"reviewdeck/internal/model"
)

// InsertQuestion stores a question. A nil OwnerID makes it a shared system
// question.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO questions (module_id, text, answer, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ModuleID, q.Text, q.Answer, q.OwnerID, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, module_id, text, answer, owner_id FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.ModuleID, &q.Text, &q.Answer, &q.OwnerID)
	return q, err
}

// ListQuestions returns all questions, ordered by module then id.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.queryQuestions(`SELECT id, module_id, text, answer, owner_id FROM questions ORDER BY module_id ASC, id ASC`)
}

// ListQuestionsByModule returns the questions of one module in id order.
// This order defines the grading cursor positions for the module.
func (s *Store) ListQuestionsByModule(moduleID int) ([]model.Question, error) {
	return s.queryQuestions(`SELECT id, module_id, text, answer, owner_id FROM questions WHERE module_id = ? ORDER BY id ASC`, moduleID)
}

func (s *Store) queryQuestions(query string, args ...any) ([]model.Question, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ModuleID, &q.Text, &q.Answer, &q.OwnerID); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpdateQuestion applies a patch; nil fields keep the existing value.
func (s *Store) UpdateQuestion(id int64, p model.QuestionPatch) (model.Question, error) {
	_, err := s.db.Exec(
		`UPDATE questions SET
			text = COALESCE(?, text),
			module_id = COALESCE(?, module_id),
			answer = COALESCE(?, answer),
			updated_at = ?
		 WHERE id = ?`,
		p.Text, p.ModuleID, p.Answer, time.Now(), id,
	)
	if err != nil {
		return model.Question{}, err
	}
	return s.GetQuestion(id)
}

// DeleteQuestion removes a question. sql.ErrNoRows when no such row existed.
func (s *Store) DeleteQuestion(id int64) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
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

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
