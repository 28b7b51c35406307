// Package translate turns text from one language into another and
// identifies the language of incoming text, both via OpenAI chat
// completions.
package translate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// Client calls the chat completion API.
type Client struct {
	api     *openai.Client
	model   string
	metrics *observability.Metrics
}

// New builds a client from config. metrics may be nil.
func New(cfg config.OpenAIConfig, metrics *observability.Metrics) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   cfg.TranslateModel,
		metrics: metrics,
	}
}

// NewWithClient wraps an existing API client, for tests.
func NewWithClient(api *openai.Client, model string) *Client {
	return &Client{api: api, model: model}
}

// Translate renders text into the language named by targetLang (an ISO
// 639-1 code). The model is instructed to return only the translation,
// with no commentary.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You are a translator. Translate the user's message into the language with ISO 639-1 code %q. "+
						"Return only the translation. No explanations, no quotes.", targetLang),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	c.record("openai", err, start)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// DetectLanguage returns the ISO 639-1 code of text's language.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Identify the language of the user's message. " +
					"Reply with only its ISO 639-1 code, for example: en",
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: 4,
	})
	c.record("openai", err, start)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("detect language: empty response")
	}
	return NormalizeCode(resp.Choices[0].Message.Content), nil
}

// NormalizeCode reduces a model reply to a bare two-letter code.
// Models occasionally answer "es." or "Spanish (es)".
func NormalizeCode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".\"'`")
	if i := strings.LastIndex(s, "("); i >= 0 {
		s = strings.Trim(s[i+1:], "() ")
	}
	if len(s) > 2 {
		s = s[:2]
	}
	return s
}

func (c *Client) record(provider string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordVendorRequest(provider, status, time.Since(start).Seconds())
}
