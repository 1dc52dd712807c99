package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/example/tutorbot/pkg/models"
)

const topicColumns = `id, title, difficulty, prerequisites, content, created_at`

// CreateTopic inserts a new topic and fills in its ID.
// Titles are unique ignoring case and every prerequisite must already exist.
func (s *Store) CreateTopic(ctx context.Context, topic *models.Topic) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.topicByTitle(ctx, tx, topic.Title)
		if err != nil {
			return err
		}
		if existing != nil {
			return models.InvalidArgument("CreateTopic", fmt.Sprintf("topic %q already exists", topic.Title))
		}
		return s.insertTopic(ctx, tx, topic)
	})
}

// EnsureTopic returns the topic with topic.Title, creating it if needed
func (s *Store) EnsureTopic(ctx context.Context, topic *models.Topic) (*models.Topic, error) {
	var out *models.Topic
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		out, err = s.ensureTopic(ctx, tx, topic)
		return err
	})
	return out, err
}

func (s *Store) ensureTopic(ctx context.Context, tx *sqlx.Tx, topic *models.Topic) (*models.Topic, error) {
	existing, err := s.topicByTitle(ctx, tx, topic.Title)
	if err != nil || existing != nil {
		return existing, err
	}
	created := *topic
	if err := s.insertTopic(ctx, tx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) insertTopic(ctx context.Context, tx *sqlx.Tx, topic *models.Topic) error {
	const op = "CreateTopic"
	topic.Title = strings.TrimSpace(topic.Title)
	if topic.Title == "" {
		return models.InvalidArgument(op, "topic title must not be empty")
	}
	if !topic.Difficulty.Valid() {
		return models.InvalidArgument(op, fmt.Sprintf("unknown difficulty %q", string(topic.Difficulty)))
	}
	for _, id := range topic.Prerequisites {
		var n int
		if err := tx.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM topics WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to check prerequisite: %w", err)
		}
		if n == 0 {
			return models.InvalidArgument(op, fmt.Sprintf("prerequisite topic %d does not exist", id))
		}
	}

	topic.CreatedAt = s.now()
	err := tx.QueryRowxContext(ctx, s.q(`
		INSERT INTO topics (title, difficulty, prerequisites, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		topic.Title, topic.Difficulty, topic.Prerequisites, topic.Content, topic.CreatedAt,
	).Scan(&topic.ID)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

// GetTopic returns a topic by ID
func (s *Store) GetTopic(ctx context.Context, id int64) (*models.Topic, error) {
	return s.getTopic(ctx, s.db, id)
}

func (s *Store) getTopic(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Topic, error) {
	var topic models.Topic
	found, err := get(ctx, q, &topic, s.q(`SELECT `+topicColumns+` FROM topics WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	if !found {
		return nil, models.NotFound("GetTopic", fmt.Sprintf("topic %d does not exist", id))
	}
	return &topic, nil
}

// GetTopicByTitle returns a topic by title, ignoring case
func (s *Store) GetTopicByTitle(ctx context.Context, title string) (*models.Topic, error) {
	topic, err := s.topicByTitle(ctx, s.db, title)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, models.NotFound("GetTopicByTitle", fmt.Sprintf("topic %q does not exist", title))
	}
	return topic, nil
}

// topicByTitle returns nil, nil when no topic has the title
func (s *Store) topicByTitle(ctx context.Context, q sqlx.QueryerContext, title string) (*models.Topic, error) {
	var topic models.Topic
	found, err := get(ctx, q, &topic, s.q(`SELECT `+topicColumns+` FROM topics WHERE LOWER(title) = LOWER(?)`), strings.TrimSpace(title))
	if err != nil {
		return nil, fmt.Errorf("failed to get topic by title: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &topic, nil
}

// ListTopics returns every topic in creation order
func (s *Store) ListTopics(ctx context.Context) ([]models.Topic, error) {
	topics := []models.Topic{}
	err := sqlx.SelectContext(ctx, s.db, &topics, `SELECT `+topicColumns+` FROM topics ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

// ListTopicsByDifficulty returns the topics of one level in creation order
func (s *Store) ListTopicsByDifficulty(ctx context.Context, level models.Level) ([]models.Topic, error) {
	if !level.Valid() {
		return nil, models.InvalidArgument("ListTopicsByDifficulty", fmt.Sprintf("unknown level %q", string(level)))
	}
	topics := []models.Topic{}
	err := sqlx.SelectContext(ctx, s.db, &topics,
		s.q(`SELECT `+topicColumns+` FROM topics WHERE difficulty = ? ORDER BY created_at, id`), level)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (s *Store) CountTopics(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM topics`); err != nil {
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	return n, nil
}
