package database

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tutorbot/internal/achievement"
	"github.com/example/tutorbot/internal/config"
	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/internal/spaced_repetition"
	"github.com/example/tutorbot/pkg/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type evaluatorFunc func(models.Snapshot) []models.Achievement

func (f evaluatorFunc) Evaluate(s models.Snapshot) []models.Achievement { return f(s) }

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "tutorbot.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(db, achievement.New(), spaced_repetition.NewPlanner(), opts...), clock
}

func seed(t *testing.T, s *Store, titles ...string) []models.Topic {
	t.Helper()
	ctx := context.Background()
	var out []models.Topic
	for _, title := range titles {
		topic := models.Topic{Title: title, Difficulty: models.LevelBeginner, Content: title + " basics"}
		require.NoError(t, s.CreateTopic(ctx, &topic))
		out = append(out, topic)
	}
	return out
}

func kinds(as []models.Achievement) []models.AchievementKind {
	out := make([]models.AchievementKind, len(as))
	for i, a := range as {
		out[i] = a.Kind
	}
	return out
}

func TestEnsureUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, 42, "ferris")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.Equal(t, models.FrequencyOnce, u.Frequency)
	assert.Equal(t, models.LevelBeginner, u.Level)
	assert.Equal(t, 0, u.StreakCount)
	assert.Nil(t, u.LastActive)

	require.NoError(t, s.SetFrequency(ctx, 42, models.FrequencyThree))
	again, err := s.EnsureUser(ctx, 42, "")
	require.NoError(t, err)
	assert.Equal(t, "ferris", again.Username)
	assert.Equal(t, models.FrequencyThree, again.Frequency)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRecordProgressCreatesRecord(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Variables")

	out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, out.Record.Mastery, 1e-9)
	assert.Equal(t, 1, out.Record.TimesPracticed)
	require.NotNil(t, out.Record.LastPracticed)
	assert.True(t, out.Record.LastPracticed.Equal(clock.Now()))
	require.NotNil(t, out.Record.NextReview)
	assert.True(t, out.Record.NextReview.After(clock.Now()))
	assert.Equal(t, "Variables", out.Record.Topic.Title)
	assert.Equal(t, 1, out.User.StreakCount)
	assert.Equal(t, []models.AchievementKind{models.AchievementFirstLesson}, kinds(out.NewAchievements))

	again, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.1, 1)
	require.NoError(t, err)
	assert.Equal(t, out.Record.ID, again.Record.ID)
	assert.Empty(t, again.NewAchievements)
}

func TestRecordProgressClamps(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Traits")

	_, err = s.RecordProgress(ctx, 1, topics[0].ID, 0.9, 1)
	require.NoError(t, err)
	out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Record.Mastery)

	out, err = s.RecordProgress(ctx, 1, topics[0].ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Record.Mastery)
	assert.Equal(t, 2, out.Record.TimesPracticed)
}

func TestRecordProgressReachesFullMastery(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Ownership")

	var all []models.Achievement
	for i := 0; i < 5; i++ {
		out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.2, 1)
		require.NoError(t, err)
		all = append(all, out.NewAchievements...)
	}

	snap, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.InDelta(t, 1.0, snap.Records[0].Mastery, 1e-9)
	assert.Equal(t, 5, snap.Records[0].TimesPracticed)
	assert.Equal(t, []string{"Ownership"}, mastery.Titles(mastery.StrongTopics(*snap)))
	assert.Equal(t, models.LevelAdvanced, snap.User.Level)
	assert.Equal(t, []models.AchievementKind{
		models.AchievementFirstLesson,
		models.AchievementTopicMastery,
	}, kinds(all))
	assert.Equal(t, "Ownership", snap.Achievements[1].Details["topic"])

	listed, err := s.ListAchievements(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, kinds(all), kinds(listed))
}

func TestRecordProgressRejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Enums")
	_, err = s.RecordProgress(ctx, 1, topics[0].ID, 0.2, 1)
	require.NoError(t, err)
	before, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)

	tests := []struct {
		name      string
		userID    int64
		topicID   int64
		delta     float64
		increment int
		check     func(error) bool
	}{
		{"unknown user", 99, topics[0].ID, 0.1, 1, models.IsNotFound},
		{"unknown topic", 1, 999, 0.1, 1, models.IsNotFound},
		{"negative delta", 1, topics[0].ID, -0.1, 1, models.IsInvalidArgument},
		{"delta above one", 1, topics[0].ID, 1.5, 1, models.IsInvalidArgument},
		{"NaN delta", 1, topics[0].ID, math.NaN(), 1, models.IsInvalidArgument},
		{"negative increment", 1, topics[0].ID, 0.1, -1, models.IsInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RecordProgress(ctx, tt.userID, tt.topicID, tt.delta, tt.increment)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}

	after, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.Records, after.Records)
	assert.Equal(t, before.User, after.User)
}

func TestRecordProgressStreak(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Loops")

	var got []models.AchievementKind
	for day := 0; day < 3; day++ {
		out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.05, 1)
		require.NoError(t, err)
		assert.Equal(t, day+1, out.User.StreakCount)
		got = append(got, kinds(out.NewAchievements)...)
		clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, []models.AchievementKind{models.AchievementFirstLesson, models.AchievementStreak3Days}, got)

	// a missed day restarts the streak
	clock.Advance(24 * time.Hour)
	out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.05, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, out.User.StreakCount)
}

func TestRecordProgressRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := newTestStore(t)
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Closures")

	s.evaluator = evaluatorFunc(func(snap models.Snapshot) []models.Achievement {
		cancel()
		return []models.Achievement{{UserID: snap.User.ID, Kind: models.AchievementFirstLesson, AwardedAt: snap.TakenAt}}
	})
	_, err = s.RecordProgress(ctx, 1, topics[0].ID, 0.5, 1)
	require.Error(t, err)

	snap, err := s.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Empty(t, snap.Achievements)
	assert.Equal(t, 0, snap.User.StreakCount)
}

func TestRecordProgressConcurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Threads")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.1, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	snap, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, 10, snap.Records[0].TimesPracticed)
	assert.Equal(t, 1.0, snap.Records[0].Mastery)
	assert.Len(t, snap.Achievements, 2)
}

func TestResetProgress(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	require.NoError(t, s.SetFrequency(ctx, 1, models.FrequencyTwice))
	topics := seed(t, s, "Macros")
	_, err = s.RecordProgress(ctx, 1, topics[0].ID, 0.9, 1)
	require.NoError(t, err)

	require.NoError(t, s.ResetProgress(ctx, 1))
	require.NoError(t, s.ResetProgress(ctx, 1))

	snap, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Empty(t, snap.Achievements)
	assert.Equal(t, 0, snap.User.StreakCount)
	assert.Equal(t, models.LevelBeginner, snap.User.Level)
	assert.Equal(t, models.FrequencyTwice, snap.User.Frequency)

	// achievements can be earned again after a reset
	out, err := s.RecordProgress(ctx, 1, topics[0].ID, 0.1, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.AchievementKind{models.AchievementFirstLesson}, kinds(out.NewAchievements))

	assert.True(t, models.IsNotFound(s.ResetProgress(ctx, 5)))
}

func TestSetFrequency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)

	assert.True(t, models.IsInvalidArgument(s.SetFrequency(ctx, 1, "hourly")))
	assert.True(t, models.IsNotFound(s.SetFrequency(ctx, 2, models.FrequencyTwice)))

	require.NoError(t, s.SetFrequency(ctx, 1, models.FrequencyTwice))
	u, err := s.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyTwice, u.Frequency)
}

func TestTopics(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	basics := models.Topic{Title: "Basics", Difficulty: models.LevelBeginner}
	require.NoError(t, s.CreateTopic(ctx, &basics))
	clock.Advance(time.Minute)
	ownership := models.Topic{Title: "Ownership", Difficulty: models.LevelBeginner, Prerequisites: models.TopicIDs{basics.ID}}
	require.NoError(t, s.CreateTopic(ctx, &ownership))
	clock.Advance(time.Minute)
	async := models.Topic{Title: "Async", Difficulty: models.LevelAdvanced}
	require.NoError(t, s.CreateTopic(ctx, &async))

	err := s.CreateTopic(ctx, &models.Topic{Title: "Basics", Difficulty: models.LevelBeginner})
	assert.True(t, models.IsInvalidArgument(err))
	err = s.CreateTopic(ctx, &models.Topic{Title: "BASICS", Difficulty: models.LevelBeginner})
	assert.True(t, models.IsInvalidArgument(err))
	err = s.CreateTopic(ctx, &models.Topic{Title: "Orphan", Difficulty: models.LevelBeginner, Prerequisites: models.TopicIDs{404}})
	assert.True(t, models.IsInvalidArgument(err))
	err = s.CreateTopic(ctx, &models.Topic{Title: "Weird", Difficulty: "expert"})
	assert.True(t, models.IsInvalidArgument(err))

	got, err := s.GetTopicByTitle(ctx, "Ownership")
	require.NoError(t, err)
	assert.Equal(t, models.TopicIDs{basics.ID}, got.Prerequisites)
	got, err = s.GetTopicByTitle(ctx, " ownership ")
	require.NoError(t, err)
	assert.Equal(t, ownership.ID, got.ID)

	beginner, err := s.ListTopicsByDifficulty(ctx, models.LevelBeginner)
	require.NoError(t, err)
	assert.Equal(t, []string{"Basics", "Ownership"}, mastery.Titles(beginner))

	n, err := s.CountTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ensured, err := s.EnsureTopic(ctx, &models.Topic{Title: "Async", Difficulty: models.LevelBeginner})
	require.NoError(t, err)
	assert.Equal(t, async.ID, ensured.ID)
	assert.Equal(t, models.LevelAdvanced, ensured.Difficulty)
	ensured, err = s.EnsureTopic(ctx, &models.Topic{Title: "async", Difficulty: models.LevelBeginner})
	require.NoError(t, err)
	assert.Equal(t, async.ID, ensured.ID)

	_, err = s.GetTopic(ctx, 999)
	assert.True(t, models.IsNotFound(err))
	_, err = s.GetTopicByTitle(ctx, "Nope")
	assert.True(t, models.IsNotFound(err))
}

func TestStartTopic(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)

	topic := &models.Topic{Title: "Lifetimes", Difficulty: models.LevelIntermediate, Content: "# Lifetimes"}
	rec, err := s.StartTopic(ctx, 1, topic)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.Mastery)
	assert.Equal(t, 0, rec.TimesPracticed)
	assert.Equal(t, "Lifetimes", rec.Topic.Title)

	_, err = s.RecordProgress(ctx, 1, rec.TopicID, 0.4, 1)
	require.NoError(t, err)
	again, err := s.StartTopic(ctx, 1, topic)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.InDelta(t, 0.4, again.Mastery, 1e-9)

	_, err = s.StartTopic(ctx, 2, topic)
	assert.True(t, models.IsNotFound(err))
}

func TestSnapshotJoinsTopics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Structs", "Generics")
	_, err = s.RecordProgress(ctx, 1, topics[1].ID, 0.75, 2)
	require.NoError(t, err)
	require.NoError(t, s.SetBookmark(ctx, 1, topics[1].ID, true))

	snap, err := s.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	r := snap.Records[0]
	assert.True(t, r.Bookmarked)
	assert.Equal(t, topics[1].ID, r.Topic.ID)
	assert.Equal(t, "Generics", r.Topic.Title)
	assert.Equal(t, models.LevelBeginner, r.Topic.Difficulty)
	assert.Equal(t, "Generics basics", r.Topic.Content)
	assert.Equal(t, []models.AchievementKind{models.AchievementFirstLesson}, kinds(snap.Achievements))

	assert.True(t, models.IsNotFound(s.SetBookmark(ctx, 1, topics[0].ID, true)))
	_, err = s.Snapshot(ctx, 2)
	assert.True(t, models.IsNotFound(err))
}

func TestStorageUniqueness(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)
	topics := seed(t, s, "Slices")
	_, err = s.RecordProgress(ctx, 1, topics[0].ID, 0.1, 1)
	require.NoError(t, err)

	_, err = s.DB().Exec(`INSERT INTO progress_records (user_id, topic_id) VALUES (1, ?)`, topics[0].ID)
	assert.Error(t, err)
	_, err = s.DB().Exec(`INSERT INTO achievements (user_id, kind, awarded_at) VALUES (1, 'first_lesson', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
	_, err = s.DB().Exec(`UPDATE progress_records SET mastery = 1.5`)
	assert.Error(t, err)
	_, err = s.DB().Exec(`UPDATE users SET frequency = 'hourly'`)
	assert.Error(t, err)
	_, err = s.DB().Exec(`INSERT INTO topics (title, difficulty, created_at) VALUES ('SLICES', 'beginner', CURRENT_TIMESTAMP)`)
	assert.Error(t, err)
}

func TestClaimDispatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureUser(ctx, 1, "u")
	require.NoError(t, err)

	ok, err := s.ClaimDispatch(ctx, 1, "2024-03-01T09")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimDispatch(ctx, 1, "2024-03-01T09")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ClaimDispatch(ctx, 1, "2024-02-28T17")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ClaimDispatch(ctx, 1, "2024-03-01T17")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.ClaimDispatch(ctx, 7, "2024-03-01T17")
	assert.True(t, models.IsNotFound(err))
	_, err = s.ClaimDispatch(ctx, 1, "")
	assert.True(t, models.IsInvalidArgument(err))
}
