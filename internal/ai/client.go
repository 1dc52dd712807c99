package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/tutorbot/internal/logger"
	"github.com/example/tutorbot/pkg/models"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Client generates lessons through the OpenAI chat completions API
type Client struct {
	apiKey      string
	apiURL      string
	model       string
	maxTokens   int
	temperature float64
	http        *http.Client
	log         *logger.Logger
}

type Option func(*Client)

// WithAPIURL points the client at another completions endpoint
func WithAPIURL(url string) Option {
	return func(c *Client) { c.apiURL = url }
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a new client
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	c := &Client{
		apiKey:      apiKey,
		apiURL:      defaultAPIURL,
		model:       "gpt-4",
		maxTokens:   1000,
		temperature: 0.7,
		http:        &http.Client{Timeout: 60 * time.Second},
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the API
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse represents a response from the API
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateLesson writes a mini lesson tailored to the learner in req
func (c *Client) GenerateLesson(ctx context.Context, req models.LessonRequest) (*models.Lesson, error) {
	content, err := c.complete(ctx, []Message{
		{Role: "system", Content: "You are a Rust programming expert creating concise, engaging lessons."},
		{Role: "user", Content: lessonPrompt(req)},
	}, c.maxTokens)
	if err != nil {
		return nil, &models.Error{Op: "GenerateLesson", Kind: models.ErrProvider, Message: "failed to generate lesson", Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &models.Error{Op: "GenerateLesson", Kind: models.ErrProvider, Message: "empty lesson returned"}
	}

	level := req.Level
	if !level.Valid() {
		level = models.LevelBeginner
	}
	return &models.Lesson{
		Title:               extractTitle(content),
		Content:             content,
		Difficulty:          level,
		RelatedTopics:       relatedTopics(content),
		PracticeSuggestions: c.practiceSuggestions(ctx, content),
	}, nil
}

// Chat answers a free-text question from the learner described by req.
// history holds earlier turns of the conversation, oldest first.
func (c *Client) Chat(ctx context.Context, req models.LessonRequest, history []models.ChatMessage, text string) (string, error) {
	messages := []Message{
		{Role: "system", Content: tutorPrompt},
		{Role: "system", Content: learnerContext(req)},
	}
	for _, m := range history {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, Message{Role: "user", Content: text})

	reply, err := c.complete(ctx, messages, c.maxTokens)
	if err != nil {
		return "", &models.Error{Op: "Chat", Kind: models.ErrProvider, Message: "failed to answer", Err: err}
	}
	if reply == "" {
		return "", &models.Error{Op: "Chat", Kind: models.ErrProvider, Message: "empty reply returned"}
	}
	return reply, nil
}

var defaultSuggestions = []string{
	"Practice implementing the concepts shown in the example",
	"Try modifying the code to handle different cases",
	"Write tests for the implementation",
}

// practiceSuggestions asks for exercises and falls back to generic ones on any failure
func (c *Client) practiceSuggestions(ctx context.Context, lesson string) []string {
	reply, err := c.complete(ctx, []Message{
		{Role: "system", Content: "Generate 3 short, practical exercises based on this Rust lesson."},
		{Role: "user", Content: lesson},
	}, 300)
	if err != nil {
		c.log.Warn("Falling back to default practice suggestions", "error", err)
		return append([]string(nil), defaultSuggestions...)
	}

	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "- ")
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultSuggestions...)
	}
	return out
}

func (c *Client) complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	requestData, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, response.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
