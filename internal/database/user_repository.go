package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/tutorbot/pkg/models"
)

const userColumns = `id, username, current_level, streak_count, last_active, frequency, last_dispatch_slot, created_at`

// EnsureUser creates the user on first contact and returns the stored row
func (s *Store) EnsureUser(ctx context.Context, id int64, username string) (*models.User, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, username, current_level, streak_count, frequency, last_dispatch_slot, created_at)
		VALUES (?, ?, ?, 0, ?, '', ?)
		ON CONFLICT (id) DO UPDATE SET username = CASE
			WHEN excluded.username <> '' THEN excluded.username
			ELSE users.username
		END`),
		id, username, models.LevelBeginner, models.DefaultFrequency, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser returns a user by Telegram ID
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, s.db, id, "")
}

func (s *Store) getUser(ctx context.Context, q sqlx.QueryerContext, id int64, suffix string) (*models.User, error) {
	var user models.User
	found, err := get(ctx, q, &user, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`+suffix), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, models.NotFound("GetUser", fmt.Sprintf("user %d does not exist", id))
	}
	return &user, nil
}

// ListUsers returns every user ordered by ID
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := sqlx.SelectContext(ctx, s.db, &users, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetFrequency changes how many lesson notifications a user receives per day
func (s *Store) SetFrequency(ctx context.Context, userID int64, freq models.Frequency) error {
	if !freq.Valid() {
		return models.InvalidArgument("SetFrequency", fmt.Sprintf("unknown frequency %q", string(freq)))
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET frequency = ? WHERE id = ?`), freq, userID)
	if err != nil {
		return fmt.Errorf("failed to update frequency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update frequency: %w", err)
	}
	if n == 0 {
		return models.NotFound("SetFrequency", fmt.Sprintf("user %d does not exist", userID))
	}
	return nil
}

func (s *Store) saveUserProgress(ctx context.Context, tx *sqlx.Tx, user *models.User) error {
	_, err := tx.ExecContext(ctx, s.q(`
		UPDATE users SET streak_count = ?, last_active = ?, current_level = ? WHERE id = ?`),
		user.StreakCount, user.LastActive, user.Level, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
