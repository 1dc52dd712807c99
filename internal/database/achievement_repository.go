package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/tutorbot/pkg/models"
)

// ListAchievements returns a user's achievements in award order
func (s *Store) ListAchievements(ctx context.Context, userID int64) ([]models.Achievement, error) {
	return s.listAchievements(ctx, s.db, userID)
}

func (s *Store) listAchievements(ctx context.Context, q sqlx.QueryerContext, userID int64) ([]models.Achievement, error) {
	achievements := []models.Achievement{}
	err := sqlx.SelectContext(ctx, q, &achievements, s.q(`
		SELECT id, user_id, kind, awarded_at, details
		FROM achievements WHERE user_id = ? ORDER BY awarded_at, id`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return achievements, nil
}

// insertAchievements stores new awards and returns the ones actually inserted;
// a kind the user already holds is skipped by the unique constraint.
func (s *Store) insertAchievements(ctx context.Context, tx *sqlx.Tx, earned []models.Achievement) ([]models.Achievement, error) {
	awarded := []models.Achievement{}
	for _, a := range earned {
		rows, err := tx.QueryxContext(ctx, s.q(`
			INSERT INTO achievements (user_id, kind, awarded_at, details)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, kind) DO NOTHING
			RETURNING id`),
			a.UserID, string(a.Kind), a.AwardedAt, a.Details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to award %s: %w", a.Kind, err)
		}
		inserted := rows.Next()
		if inserted {
			err = rows.Scan(&a.ID)
		}
		if err == nil {
			err = rows.Err()
		}
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to award %s: %w", a.Kind, err)
		}
		if inserted {
			if a.Details == nil {
				a.Details = models.Details{}
			}
			awarded = append(awarded, a)
		}
	}
	return awarded, nil
}
