package store

import (
	"database/sql"
	"log/slog"
	"time"

	"reviewdeck/internal/model"
)

// CreateUser inserts a new console user.
func (s *Store) CreateUser(u model.User) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, display_name, password_hash, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Active, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created user", "id", id, "username", u.Username, "role", u.Role)
	return id, nil
}

// GetUserByUsername returns a user by username, nil when unknown.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	return scanUser(s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, role, active, created_at
		 FROM users WHERE username = ?`, username))
}

// GetUserByID returns a user by ID, nil when unknown.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	return scanUser(s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, role, active, created_at
		 FROM users WHERE id = ?`, id))
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserPassword replaces a user's password hash.
func (s *Store) SetUserPassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	return err
}

// UserCount returns the total number of users.
func (s *Store) UserCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
