package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/pkg/models"
)

const (
	// MaxMessageLength is Telegram's limit for one text message, in characters
	MaxMessageLength = 4096

	// PollTimeout is the long polling timeout for getUpdates, in seconds
	PollTimeout = 60
	// RequestTimeout bounds every Bot API call; it must exceed PollTimeout
	RequestTimeout = 90 * time.Second
)

// Sender is the part of tgbotapi.BotAPI the gateway uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway delivers text messages to users over Telegram
type Gateway struct {
	api Sender
	log *logger.Logger
}

// NewGateway wraps an existing sender such as *tgbotapi.BotAPI
func NewGateway(api Sender, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{api: api, log: log}
}

// Dial authorizes against the Bot API with token. Every call made through
// the returned client gives up after RequestTimeout.
func Dial(token string, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	return dial(token, tgbotapi.APIEndpoint, log)
}

func dial(token, endpoint string, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: RequestTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	if log != nil {
		log.Info("Authorized on account", "username", api.Self.UserName)
	}
	return api, nil
}

// SendMessage sends text to the user's private chat, splitting long texts.
// Errors are *models.DispatchError classified as blocked, rate limited or unreachable.
func (g *Gateway) SendMessage(ctx context.Context, userID int64, text string) error {
	return g.sendText(ctx, userID, text, nil)
}

// SendKeyboard is SendMessage with an inline keyboard under the last part
func (g *Gateway) SendKeyboard(ctx context.Context, userID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	return g.sendText(ctx, userID, text, keyboard)
}

// AnswerCallback acknowledges a button press so the client stops its spinner
func (g *Gateway) AnswerCallback(ctx context.Context, callbackID string) error {
	return g.call(ctx, func() error {
		_, err := g.api.Request(tgbotapi.NewCallback(callbackID, ""))
		return err
	})
}

func (g *Gateway) sendText(ctx context.Context, userID int64, text string, markup interface{}) error {
	// Telegram private chat IDs are the user IDs
	chatID := userID
	parts := splitMessage(text, MaxMessageLength)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if markup != nil && i == len(parts)-1 {
			msg.ReplyMarkup = markup
		}
		if err := g.send(ctx, msg); err != nil {
			derr := classify(userID, err)
			g.log.Warn("Error sending message", "user_id", userID, "kind", derr.Kind.String(), "error", err)
			return derr
		}
	}
	return nil
}

func (g *Gateway) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	return g.call(ctx, func() error {
		_, err := g.api.Send(msg)
		return err
	})
}

// call runs fn but returns as soon as ctx is done; fn itself is bounded
// by the HTTP client's timeout.
func (g *Gateway) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classify(userID int64, err error) *models.DispatchError {
	kind := models.DispatchUnreachable
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusForbidden:
			kind = models.DispatchBlocked
		case http.StatusTooManyRequests:
			kind = models.DispatchRateLimited
		}
	}
	return &models.DispatchError{UserID: userID, Kind: kind, Err: err}
}

// splitMessage cuts text into chunks of at most limit characters,
// preferring to break after a newline.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
