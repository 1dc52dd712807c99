package database

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/pkg/models"
)

const progressColumns = `id, user_id, topic_id, mastery, times_practiced, last_practiced, next_review, is_bookmarked`

const snapshotRecordsQuery = `
	SELECT p.id, p.user_id, p.topic_id, p.mastery, p.times_practiced,
		p.last_practiced, p.next_review, p.is_bookmarked,
		t.id AS "topic.id",
		t.title AS "topic.title",
		t.difficulty AS "topic.difficulty",
		t.prerequisites AS "topic.prerequisites",
		t.content AS "topic.content",
		t.created_at AS "topic.created_at"
	FROM progress_records p
	JOIN topics t ON t.id = p.topic_id
	WHERE p.user_id = ?
	ORDER BY p.id`

// RecordProgress applies one practice event: mastery grows by delta (clamped
// to 1), the practice counter by increment, and the user's streak, level and
// achievements are brought up to date. Everything commits together or not at all.
func (s *Store) RecordProgress(ctx context.Context, userID, topicID int64, delta float64, increment int) (*models.ProgressOutcome, error) {
	const op = "RecordProgress"
	if math.IsNaN(delta) || delta < 0 || delta > 1 {
		return nil, models.InvalidArgument(op, fmt.Sprintf("mastery delta %v is outside [0, 1]", delta))
	}
	if increment < 0 {
		return nil, models.InvalidArgument(op, fmt.Sprintf("practice increment %d is negative", increment))
	}

	var outcome *models.ProgressOutcome
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.getUser(ctx, tx, userID, s.forUpdate())
		if err != nil {
			return err
		}
		topic, err := s.getTopic(ctx, tx, topicID)
		if err != nil {
			return err
		}

		now := s.now()
		record, found, err := s.getRecord(ctx, tx, userID, topicID)
		if err != nil {
			return err
		}
		if !found {
			record = models.ProgressRecord{UserID: userID, TopicID: topicID}
		}
		record.Mastery = mastery.Clamp(record.Mastery + delta)
		record.TimesPracticed += increment
		record.LastPracticed = &now
		next := s.planner.NextReview(record.TimesPracticed, record.Mastery, now)
		record.NextReview = &next
		if err := s.saveRecord(ctx, tx, &record, found); err != nil {
			return err
		}
		record.Topic = *topic

		snap, err := s.snapshot(ctx, tx, user)
		if err != nil {
			return err
		}
		user.StreakCount = mastery.AdvanceStreak(user.StreakCount, user.LastActive, now, s.loc)
		user.LastActive = &now
		user.Level = mastery.DeriveLevel(*snap)
		if err := s.saveUserProgress(ctx, tx, user); err != nil {
			return err
		}
		snap.User = *user
		snap.TakenAt = now

		awarded, err := s.insertAchievements(ctx, tx, s.evaluator.Evaluate(*snap))
		if err != nil {
			return err
		}
		outcome = &models.ProgressOutcome{Record: record, User: *user, NewAchievements: awarded}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range outcome.NewAchievements {
		s.log.Info("Achievement awarded", "user_id", userID, "kind", a.Kind)
	}
	return outcome, nil
}

// UpsertProgress is RecordProgress for callers that only need the record
func (s *Store) UpsertProgress(ctx context.Context, userID, topicID int64, delta float64, increment int) (*models.ProgressRecord, error) {
	outcome, err := s.RecordProgress(ctx, userID, topicID, delta, increment)
	if err != nil {
		return nil, err
	}
	return &outcome.Record, nil
}

// StartTopic makes sure topic exists and the user has a record for it.
// It is used once a lesson on the topic has been generated.
func (s *Store) StartTopic(ctx context.Context, userID int64, topic *models.Topic) (*models.ProgressRecord, error) {
	var record models.ProgressRecord
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.getUser(ctx, tx, userID, s.forUpdate()); err != nil {
			return err
		}
		stored, err := s.ensureTopic(ctx, tx, topic)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO progress_records (user_id, topic_id, mastery, times_practiced, is_bookmarked)
			VALUES (?, ?, 0, 0, FALSE)
			ON CONFLICT (user_id, topic_id) DO NOTHING`),
			userID, stored.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to create progress record: %w", err)
		}
		var found bool
		record, found, err = s.getRecord(ctx, tx, userID, stored.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("progress record for topic %d vanished", stored.ID)
		}
		record.Topic = *stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ResetProgress wipes a user's records and achievements and restarts the streak.
// The user and their notification frequency are kept. Resetting twice is a no-op.
func (s *Store) ResetProgress(ctx context.Context, userID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.getUser(ctx, tx, userID, s.forUpdate()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM progress_records WHERE user_id = ?`), userID); err != nil {
			return fmt.Errorf("failed to delete progress: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM achievements WHERE user_id = ?`), userID); err != nil {
			return fmt.Errorf("failed to delete achievements: %w", err)
		}
		_, err := tx.ExecContext(ctx, s.q(`
			UPDATE users SET streak_count = 0, last_active = NULL, current_level = ? WHERE id = ?`),
			models.LevelBeginner, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to reset user: %w", err)
		}
		return nil
	})
}

// SetBookmark flags or unflags a topic the user has a record for
func (s *Store) SetBookmark(ctx context.Context, userID, topicID int64, bookmarked bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE progress_records SET is_bookmarked = ? WHERE user_id = ? AND topic_id = ?`),
		bookmarked, userID, topicID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update bookmark: %w", err)
	}
	if n == 0 {
		return models.NotFound("SetBookmark", fmt.Sprintf("user %d has no progress on topic %d", userID, topicID))
	}
	return nil
}

// Snapshot reads a user's records, topics and achievements as one consistent state
func (s *Store) Snapshot(ctx context.Context, userID int64) (*models.Snapshot, error) {
	var snap *models.Snapshot
	err := s.readTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.getUser(ctx, tx, userID, "")
		if err != nil {
			return err
		}
		snap, err = s.snapshot(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) snapshot(ctx context.Context, tx *sqlx.Tx, user *models.User) (*models.Snapshot, error) {
	records := []models.ProgressRecord{}
	if err := tx.SelectContext(ctx, &records, s.q(snapshotRecordsQuery), user.ID); err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	achievements, err := s.listAchievements(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{
		User:         *user,
		Records:      records,
		Achievements: achievements,
		TakenAt:      s.now(),
	}, nil
}

func (s *Store) getRecord(ctx context.Context, tx *sqlx.Tx, userID, topicID int64) (models.ProgressRecord, bool, error) {
	var record models.ProgressRecord
	found, err := get(ctx, tx, &record,
		s.q(`SELECT `+progressColumns+` FROM progress_records WHERE user_id = ? AND topic_id = ?`), userID, topicID)
	if err != nil {
		return record, false, fmt.Errorf("failed to get progress: %w", err)
	}
	return record, found, nil
}

func (s *Store) saveRecord(ctx context.Context, tx *sqlx.Tx, record *models.ProgressRecord, exists bool) error {
	if exists {
		_, err := tx.ExecContext(ctx, s.q(`
			UPDATE progress_records
			SET mastery = ?, times_practiced = ?, last_practiced = ?, next_review = ?
			WHERE id = ?`),
			record.Mastery, record.TimesPracticed, record.LastPracticed, record.NextReview, record.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	}

	err := tx.QueryRowxContext(ctx, s.q(`
		INSERT INTO progress_records (user_id, topic_id, mastery, times_practiced, last_practiced, next_review, is_bookmarked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		record.UserID, record.TopicID, record.Mastery, record.TimesPracticed,
		record.LastPracticed, record.NextReview, record.Bookmarked,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	return nil
}
