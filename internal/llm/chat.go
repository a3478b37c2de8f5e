package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

// Options configures a ChatClient.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// CacheSize bounds the response cache; zero disables caching.
	CacheSize int
}

// ChatClient talks to any OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	client *resty.Client
	opts   Options
	cache  *lru.Cache[string, string]
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewChatClient(opts Options) (*ChatClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Content-Type", "application/json")

	c := &ChatClient{client: client, opts: opts}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("llm: cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Resty exposes the underlying client so callers can adjust transport settings.
func (c *ChatClient) Resty() *resty.Client { return c.client }

// Chat sends a system and user message and returns the trimmed first choice.
// Identical requests are answered from the cache.
func (c *ChatClient) Chat(ctx context.Context, system, user string) (string, error) {
	if c.opts.APIKey == "" {
		return "", fmt.Errorf("llm: api key missing")
	}
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	key := c.cacheKey(messages)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
	}

	var cr chatCompletionsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.opts.APIKey).
		SetBody(chatCompletionsRequest{
			Model:       c.opts.Model,
			Messages:    messages,
			Temperature: c.opts.Temperature,
			MaxTokens:   c.opts.MaxTokens,
		}).
		SetResult(&cr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm error: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("llm: empty choices")
	}
	answer := strings.TrimSpace(cr.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("llm: empty answer")
	}
	if c.cache != nil {
		c.cache.Add(key, answer)
	}
	return answer, nil
}

func (c *ChatClient) cacheKey(messages []chatMessage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.3f|%d", c.opts.Model, c.opts.Temperature, c.opts.MaxTokens)
	for _, m := range messages {
		fmt.Fprintf(h, "|%s:%s", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
