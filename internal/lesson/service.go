// Package lesson ties the progress store, the lesson provider and the
// gateway together: first contact, lesson generation, completion and the
// scheduled notification.
package lesson

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/tutorbot/internal/achievement"
	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/pkg/models"
)

// Store is the progress store as seen by the service
type Store interface {
	EnsureUser(ctx context.Context, id int64, username string) (*models.User, error)
	Snapshot(ctx context.Context, userID int64) (*models.Snapshot, error)
	CountTopics(ctx context.Context) (int, error)
	ListTopicsByDifficulty(ctx context.Context, level models.Level) ([]models.Topic, error)
	GetTopicByTitle(ctx context.Context, title string) (*models.Topic, error)
	StartTopic(ctx context.Context, userID int64, topic *models.Topic) (*models.ProgressRecord, error)
	RecordProgress(ctx context.Context, userID, topicID int64, delta float64, increment int) (*models.ProgressOutcome, error)
	SetFrequency(ctx context.Context, userID int64, freq models.Frequency) error
	SetBookmark(ctx context.Context, userID, topicID int64, bookmarked bool) error
	ResetProgress(ctx context.Context, userID int64) error
}

// Provider writes lesson content and answers questions
type Provider interface {
	GenerateLesson(ctx context.Context, req models.LessonRequest) (*models.Lesson, error)
	Chat(ctx context.Context, req models.LessonRequest, history []models.ChatMessage, text string) (string, error)
}

// MaxChatHistory is how many earlier chat messages are sent with a question
const MaxChatHistory = 10

// Gateway delivers messages to users
type Gateway interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// ReviewPlanner picks the records due for review
type ReviewPlanner interface {
	DueForReview(records []models.ProgressRecord, now time.Time, limit int) []models.ProgressRecord
}

type Service struct {
	store    Store
	provider Provider
	gateway  Gateway
	planner  ReviewPlanner
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	history map[int64][]models.ChatMessage
}

func NewService(store Store, provider Provider, gateway Gateway, planner ReviewPlanner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		provider: provider,
		gateway:  gateway,
		planner:  planner,
		now:      time.Now,
		log:      log,
		history:  map[int64][]models.ChatMessage{},
	}
}

// Start registers the user on first contact
func (s *Service) Start(ctx context.Context, userID int64, username string) (*models.User, error) {
	user, err := s.store.EnsureUser(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	s.log.Debug("User started", "user_id", userID)
	return user, nil
}

// Report builds the user's progress report
func (s *Service) Report(ctx context.Context, userID int64) (*mastery.Report, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.report(ctx, snap)
}

func (s *Service) report(ctx context.Context, snap *models.Snapshot) (*mastery.Report, error) {
	total, err := s.store.CountTopics(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := s.store.ListTopicsByDifficulty(ctx, snap.User.Level)
	if err != nil {
		return nil, err
	}
	r := mastery.BuildReport(*snap, total, candidates)
	return &r, nil
}

// NextLesson generates a lesson for the user's current state. The lesson's
// topic and a zero progress record are stored only after the provider succeeds.
func (s *Service) NextLesson(ctx context.Context, userID int64) (*models.Lesson, error) {
	report, err := s.Report(ctx, userID)
	if err != nil {
		return nil, err
	}
	l, err := s.provider.GenerateLesson(ctx, report.LessonRequest(userID))
	if err != nil {
		return nil, err
	}
	record, err := s.store.StartTopic(ctx, userID, &models.Topic{
		Title:      l.Title,
		Difficulty: l.Difficulty,
		Content:    l.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save lesson topic: %w", err)
	}
	l.TopicID = record.TopicID
	return l, nil
}

// Chat answers a free-text message from the user, adapted to their level
// and strong/weak topics. The last MaxChatHistory messages go along with it.
func (s *Service) Chat(ctx context.Context, userID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", models.InvalidArgument("Chat", "message must not be empty")
	}
	report, err := s.Report(ctx, userID)
	if err != nil {
		return "", err
	}
	reply, err := s.provider.Chat(ctx, report.LessonRequest(userID), s.conversation(userID), text)
	if err != nil {
		return "", err
	}
	s.remember(userID,
		models.ChatMessage{Role: "user", Content: text},
		models.ChatMessage{Role: "assistant", Content: reply},
	)
	return reply, nil
}

func (s *Service) conversation(userID int64) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.history[userID]...)
}

func (s *Service) remember(userID int64, msgs ...models.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[userID], msgs...)
	if len(h) > MaxChatHistory {
		h = append([]models.ChatMessage(nil), h[len(h)-MaxChatHistory:]...)
	}
	s.history[userID] = h
}

// Complete marks a lesson on title as done and announces any new achievements
func (s *Service) Complete(ctx context.Context, userID int64, title string) (*models.ProgressOutcome, error) {
	topic, err := s.store.GetTopicByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.Practice(ctx, userID, topic.ID, mastery.DefaultMasteryIncrement)
}

// Practice records one practice session with a caller-chosen mastery gain
func (s *Service) Practice(ctx context.Context, userID, topicID int64, delta float64) (*models.ProgressOutcome, error) {
	outcome, err := s.store.RecordProgress(ctx, userID, topicID, delta, 1)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, userID, outcome.NewAchievements)
	return outcome, nil
}

// announce is best effort; the achievements are already stored
func (s *Service) announce(ctx context.Context, userID int64, earned []models.Achievement) {
	for _, a := range earned {
		if err := s.gateway.SendMessage(ctx, userID, achievement.Message(a)); err != nil {
			s.log.Warn("Failed to announce achievement",
				"user_id", userID, "kind", a.Kind, "dispatch", models.DispatchKindOf(err).String(), "error", err)
		}
	}
}

// SetFrequency parses and stores the user's notification frequency
func (s *Service) SetFrequency(ctx context.Context, userID int64, raw string) (models.Frequency, error) {
	freq, err := models.ParseFrequency(raw)
	if err != nil {
		return "", err
	}
	if err := s.store.SetFrequency(ctx, userID, freq); err != nil {
		return "", err
	}
	return freq, nil
}

// Bookmark flags or unflags the topic with title
func (s *Service) Bookmark(ctx context.Context, userID int64, title string, on bool) error {
	topic, err := s.store.GetTopicByTitle(ctx, title)
	if err != nil {
		return err
	}
	return s.store.SetBookmark(ctx, userID, topic.ID, on)
}

func (s *Service) Reset(ctx context.Context, userID int64) error {
	if err := s.store.ResetProgress(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.history, userID)
	s.mu.Unlock()
	s.log.Info("Progress reset", "user_id", userID)
	return nil
}

// DueForReview lists up to limit topics the user should revisit now
func (s *Service) DueForReview(ctx context.Context, userID int64, limit int) ([]models.ProgressRecord, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.planner.DueForReview(snap.Records, s.now(), limit), nil
}

// Notify generates a lesson and sends it; it is the scheduler's notifier
func (s *Service) Notify(ctx context.Context, user models.User) error {
	l, err := s.NextLesson(ctx, user.ID)
	if err != nil {
		return err
	}
	return s.gateway.SendMessage(ctx, user.ID, FormatLesson(l))
}

// FormatLesson renders a lesson as a chat message
func FormatLesson(l *models.Lesson) string {
	var b strings.Builder
	b.WriteString("📚 Your Rust lesson for today\n\n")
	b.WriteString(l.Content)
	if len(l.PracticeSuggestions) > 0 {
		b.WriteString("\n\n💪 Practice:\n")
		for _, p := range l.PracticeSuggestions {
			b.WriteString("• " + p + "\n")
		}
	}
	if len(l.RelatedTopics) > 0 {
		b.WriteString("\nRelated: " + strings.Join(l.RelatedTopics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatReport renders a progress report as a chat message
func FormatReport(r *mastery.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Level: %s\n", r.Level)
	fmt.Fprintf(&b, "Completed: %d/%d topics (%.0f%%)\n", r.TopicsCompleted, r.TotalTopics, r.CompletionPercentage)
	fmt.Fprintf(&b, "Average mastery: %.0f%%\n", r.AverageMastery*100)
	fmt.Fprintf(&b, "Streak: %d days, %d practice sessions\n", r.StreakCount, r.TotalPractice)
	if len(r.NeedsReview) > 0 {
		b.WriteString("Needs review: " + strings.Join(r.NeedsReview, ", ") + "\n")
	}
	if len(r.NextTopics) > 0 {
		b.WriteString("Up next: " + strings.Join(r.NextTopics, ", ") + "\n")
	}
	if len(r.Achievements) > 0 {
		names := make([]string, len(r.Achievements))
		for i, k := range r.Achievements {
			names[i] = string(k)
		}
		b.WriteString("Achievements: " + strings.Join(names, ", ") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
