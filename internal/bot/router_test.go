package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/pkg/models"
)

type fakeService struct {
	mu        sync.Mutex
	started   []int64
	practiced []int64
	deltas    []float64
	questions []string
	freq      string
	lessonErr error
	users     map[int64]bool
}

func newFakeService() *fakeService {
	return &fakeService{users: map[int64]bool{}}
}

func (f *fakeService) known(userID int64) error {
	if !f.users[userID] {
		return models.NotFound("Snapshot", "no such user")
	}
	return nil
}

func (f *fakeService) Start(_ context.Context, userID int64, _ string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[userID] = true
	f.started = append(f.started, userID)
	return &models.User{ID: userID}, nil
}

func (f *fakeService) Report(_ context.Context, userID int64) (*mastery.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(userID); err != nil {
		return nil, err
	}
	return &mastery.Report{Level: models.LevelBeginner, TotalTopics: 4}, nil
}

func (f *fakeService) NextLesson(_ context.Context, userID int64) (*models.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(userID); err != nil {
		return nil, err
	}
	if f.lessonErr != nil {
		return nil, f.lessonErr
	}
	return &models.Lesson{TopicID: 7, Title: "Ownership", Content: "# Ownership"}, nil
}

func (f *fakeService) Practice(_ context.Context, userID, topicID int64, delta float64) (*models.ProgressOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(userID); err != nil {
		return nil, err
	}
	f.practiced = append(f.practiced, topicID)
	f.deltas = append(f.deltas, delta)
	return &models.ProgressOutcome{}, nil
}

func (f *fakeService) SetFrequency(_ context.Context, userID int64, raw string) (models.Frequency, error) {
	freq, err := models.ParseFrequency(raw)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freq = raw
	return freq, nil
}

func (f *fakeService) Reset(context.Context, int64) error { return nil }

func (f *fakeService) Chat(_ context.Context, userID int64, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.known(userID); err != nil {
		return "", err
	}
	f.questions = append(f.questions, text)
	return "Focus on borrowing.", nil
}

type fakeUpdater struct {
	ch      chan tgbotapi.Update
	stopped chan struct{}
	once    sync.Once
}

func newFakeUpdater() *fakeUpdater {
	return &fakeUpdater{ch: make(chan tgbotapi.Update), stopped: make(chan struct{})}
}

func (f *fakeUpdater) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.ch
}

func (f *fakeUpdater) StopReceivingUpdates() {
	f.once.Do(func() { close(f.stopped) })
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := text
	for i, r := range text {
		if r == ' ' {
			cmd = text[:i]
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, UserName: "ferris"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func plainText(userID int64, body string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: body,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + data,
		From: &tgbotapi.User{ID: userID},
		Data: data,
	}}
}

func newTestRouter() (*Router, *fakeService, *fakeSender) {
	sender := &fakeSender{}
	svc := newFakeService()
	return NewRouter(newFakeUpdater(), NewGateway(sender, nil), svc, nil), svc, sender
}

func TestRouterStartAndLesson(t *testing.T) {
	r, svc, sender := newTestRouter()
	ctx := context.Background()

	r.handleUpdate(ctx, command(5, "/start"))
	assert.Equal(t, []int64{5}, svc.started)
	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Welcome to the Rust Learning Bot")
	assert.Equal(t, mainMenu(), sent[0].ReplyMarkup)

	r.handleUpdate(ctx, command(5, "/lesson"))
	sent = sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "# Ownership")
	assert.Equal(t, lessonMenu(7), sent[1].ReplyMarkup)

	r.handleUpdate(ctx, callback(5, "complete:7"))
	assert.Equal(t, []int64{7}, svc.practiced)
	assert.Equal(t, []float64{mastery.DefaultMasteryIncrement}, svc.deltas)
	assert.Equal(t, []string{"cb-complete:7"}, sender.answered)
	sent = sender.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[2].Text, "Progress saved")
}

func TestRouterRequiresStart(t *testing.T) {
	r, _, sender := newTestRouter()
	r.handleUpdate(context.Background(), command(9, "/lesson"))

	sent := sender.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "/start first")
}

func TestRouterProviderFailure(t *testing.T) {
	r, svc, sender := newTestRouter()
	ctx := context.Background()
	r.handleUpdate(ctx, command(5, "/start"))
	svc.lessonErr = &models.Error{Op: "GenerateLesson", Kind: models.ErrProvider, Message: "down"}

	r.handleUpdate(ctx, callback(5, "lesson_next"))
	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "couldn't reach the tutor")
}

func TestRouterFrequency(t *testing.T) {
	r, svc, sender := newTestRouter()
	ctx := context.Background()

	r.handleUpdate(ctx, command(5, "/frequency twice"))
	assert.Equal(t, "twice", svc.freq)
	r.handleUpdate(ctx, command(5, "/frequency hourly"))

	sent := sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "twice")
	assert.Contains(t, sent[1].Text, "Usage: /frequency")
}

func TestRouterProgressAndChat(t *testing.T) {
	r, svc, sender := newTestRouter()
	ctx := context.Background()
	r.handleUpdate(ctx, command(5, "/start"))

	r.handleUpdate(ctx, command(5, "/progress"))
	r.handleUpdate(ctx, plainText(5, "How do lifetimes work?"))
	r.handleUpdate(ctx, plainText(5, "   "))

	assert.Equal(t, []string{progressQuestion, "How do lifetimes work?"}, svc.questions)
	sent := sender.messages()
	require.Len(t, sent, 3)
	assert.Contains(t, sent[1].Text, "📊 Level: beginner")
	assert.Contains(t, sent[1].Text, "Analysis:\nFocus on borrowing.")
	assert.Equal(t, "Focus on borrowing.", sent[2].Text)
}

func TestRouterRunStopsWithContext(t *testing.T) {
	sender := &fakeSender{}
	svc := newFakeService()
	updater := newFakeUpdater()
	r := NewRouter(updater, NewGateway(sender, nil), svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	updater.ch <- command(5, "/start")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-updater.stopped:
	default:
		t.Fatal("updates were not stopped")
	}
	assert.Equal(t, []int64{5}, svc.started)
}
