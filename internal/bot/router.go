package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tutorbot/internal/lesson"
	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/internal/mastery"
	"github.com/example/tutorbot/pkg/models"
)

// Callback data of the inline buttons
const (
	callbackLesson   = "lesson_start"
	callbackNext     = "lesson_next"
	callbackProgress = "view_progress"
	callbackComplete = "complete:" // followed by the topic ID
)

const progressQuestion = "Show me my learning progress and suggest what to focus on next."

const welcomeText = `🦀 Welcome to the Rust Learning Bot! 🚀

I'm here to help you master Rust programming through:
• Daily lessons and exercises
• Progress tracking
• Spaced repetition learning

Commands:
/lesson - get a lesson for your level
/progress - show your progress
/frequency once|twice|three - lessons per day
/reset - start over

Or just ask me anything about Rust.`

// Service is the part of lesson.Service the router drives
type Service interface {
	Start(ctx context.Context, userID int64, username string) (*models.User, error)
	Report(ctx context.Context, userID int64) (*mastery.Report, error)
	NextLesson(ctx context.Context, userID int64) (*models.Lesson, error)
	Practice(ctx context.Context, userID, topicID int64, delta float64) (*models.ProgressOutcome, error)
	SetFrequency(ctx context.Context, userID int64, raw string) (models.Frequency, error)
	Reset(ctx context.Context, userID int64) error
	Chat(ctx context.Context, userID int64, text string) (string, error)
}

// Updater is the part of tgbotapi.BotAPI that delivers updates
type Updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Router maps incoming chat updates onto the lesson service
type Router struct {
	updates Updater
	gateway *Gateway
	service Service
	log     *logger.Logger
}

func NewRouter(updates Updater, gateway *Gateway, service Service, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{updates: updates, gateway: gateway, service: service, log: log}
}

// Run long-polls for updates until ctx is done, handling each one in its
// own goroutine. It returns after in-flight updates finish.
func (r *Router) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = PollTimeout
	updates := r.updates.GetUpdatesChan(cfg)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			r.updates.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.handleUpdate(ctx, update)
			}()
		}
	}
}

func (r *Router) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		r.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		r.handleCallback(ctx, update.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if !msg.IsCommand() {
		r.chat(ctx, userID, msg.Text)
		return
	}

	switch msg.Command() {
	case "start":
		if _, err := r.service.Start(ctx, userID, msg.From.UserName); err != nil {
			r.fail(ctx, userID, "start", err)
			return
		}
		r.sendKeyboard(ctx, userID, welcomeText, mainMenu())
	case "lesson":
		r.lesson(ctx, userID)
	case "progress":
		r.progress(ctx, userID)
	case "frequency":
		freq, err := r.service.SetFrequency(ctx, userID, msg.CommandArguments())
		if models.IsInvalidArgument(err) {
			r.reply(ctx, userID, "Usage: /frequency once|twice|three")
			return
		}
		if err != nil {
			r.fail(ctx, userID, "frequency", err)
			return
		}
		r.reply(ctx, userID, "⏰ Lessons per day set to: "+freq.String())
	case "reset":
		if err := r.service.Reset(ctx, userID); err != nil {
			r.fail(ctx, userID, "reset", err)
			return
		}
		r.reply(ctx, userID, "Your progress has been reset. Send /lesson to begin again.")
	default:
		r.reply(ctx, userID, "Unknown command. Send /start to see what I can do.")
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := r.gateway.AnswerCallback(ctx, cb.ID); err != nil {
		r.log.Debug("Failed to answer callback", "error", err)
	}
	userID := cb.From.ID

	switch {
	case cb.Data == callbackLesson, cb.Data == callbackNext:
		r.lesson(ctx, userID)
	case cb.Data == callbackProgress:
		r.progress(ctx, userID)
	case strings.HasPrefix(cb.Data, callbackComplete):
		topicID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, callbackComplete), 10, 64)
		if err != nil {
			r.log.Warn("Bad complete callback", "data", cb.Data)
			return
		}
		if _, err := r.service.Practice(ctx, userID, topicID, mastery.DefaultMasteryIncrement); err != nil {
			r.fail(ctx, userID, "complete", err)
			return
		}
		r.sendKeyboard(ctx, userID, "✅ Progress saved! Great job completing this topic!", nextMenu())
	default:
		r.log.Debug("Unknown callback", "data", cb.Data)
	}
}

func (r *Router) lesson(ctx context.Context, userID int64) {
	l, err := r.service.NextLesson(ctx, userID)
	if err != nil {
		r.fail(ctx, userID, "lesson", err)
		return
	}
	r.sendKeyboard(ctx, userID, lesson.FormatLesson(l), lessonMenu(l.TopicID))
}

func (r *Router) progress(ctx context.Context, userID int64) {
	report, err := r.service.Report(ctx, userID)
	if err != nil {
		r.fail(ctx, userID, "progress", err)
		return
	}
	text := lesson.FormatReport(report)
	// the analysis is optional; the numbers alone are still useful
	if analysis, err := r.service.Chat(ctx, userID, progressQuestion); err == nil {
		text += "\n\nAnalysis:\n" + analysis
	} else {
		r.log.Warn("Progress analysis failed", "user_id", userID, "error", err)
	}
	r.reply(ctx, userID, text)
}

func (r *Router) chat(ctx context.Context, userID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	answer, err := r.service.Chat(ctx, userID, text)
	if err != nil {
		r.fail(ctx, userID, "chat", err)
		return
	}
	r.reply(ctx, userID, answer)
}

// fail logs err and tells the user what went wrong in their terms
func (r *Router) fail(ctx context.Context, userID int64, action string, err error) {
	switch {
	case models.IsNotFound(err):
		r.reply(ctx, userID, "Please send /start first to set up your learning profile.")
	case errors.Is(err, models.ErrProvider):
		r.log.Warn("Lesson provider failed", "user_id", userID, "action", action, "error", err)
		r.reply(ctx, userID, "❌ Sorry, I couldn't reach the tutor right now. Please try again later.")
	default:
		r.log.Error("Failed to handle update", "user_id", userID, "action", action, "error", err)
		r.reply(ctx, userID, "❌ Something went wrong. Please try again.")
	}
}

func (r *Router) reply(ctx context.Context, userID int64, text string) {
	// SendMessage logs its own failures
	_ = r.gateway.SendMessage(ctx, userID, text)
}

func (r *Router) sendKeyboard(ctx context.Context, userID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	_ = r.gateway.SendKeyboard(ctx, userID, text, keyboard)
}

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Start Today's Lesson", callbackLesson),
			tgbotapi.NewInlineKeyboardButtonData("View Progress", callbackProgress),
		),
	)
}

func lessonMenu(topicID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Complete ✅", callbackComplete+strconv.FormatInt(topicID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("Next Lesson ➡️", callbackNext),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Try in Playground 💻", "https://play.rust-lang.org/"),
		),
	)
}

func nextMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Next Lesson ➡️", callbackNext),
			tgbotapi.NewInlineKeyboardButtonData("View Progress", callbackProgress),
		),
	)
}
