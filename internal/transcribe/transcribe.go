// Package transcribe converts voice notes to text with OpenAI's hosted
// speech-to-text models. Models are tried in configured order so an
// outage of the newest model degrades to the older one instead of
// failing the message.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// Result is a finished transcription.
type Result struct {
	Text string
	// Language is the ISO 639-1 code reported by the model, or ""
	// when it could not be mapped.
	Language string
	// Model is the model that produced the text.
	Model string
}

// Client transcribes audio files.
type Client struct {
	api     *openai.Client
	models  []string
	metrics *observability.Metrics
}

// New builds a client from config. metrics may be nil.
func New(cfg config.OpenAIConfig, metrics *observability.Metrics) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		models:  cfg.TranscribeModels,
		metrics: metrics,
	}
}

// NewWithClient wraps an existing API client, for tests.
func NewWithClient(api *openai.Client, models []string) *Client {
	return &Client{api: api, models: models}
}

// Transcribe sends the audio file at path through the model list and
// returns the first successful result.
func (c *Client) Transcribe(ctx context.Context, path string) (*Result, error) {
	if len(c.models) == 0 {
		return nil, errors.New("transcribe: no models configured")
	}

	var lastErr error
	for _, model := range c.models {
		start := time.Now()
		resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    model,
			FilePath: path,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		c.record(err, start)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			lastErr = fmt.Errorf("model %s returned empty transcript", model)
			continue
		}
		return &Result{
			Text:     text,
			Language: languageCode(resp.Language),
			Model:    model,
		}, nil
	}
	return nil, fmt.Errorf("transcribe: all models failed: %w", lastErr)
}

func (c *Client) record(err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordVendorRequest("openai", status, time.Since(start).Seconds())
}

// languageCode maps the verbose transcription language field, which is
// a lowercase English name, to an ISO 639-1 code. Unknown names map to
// "" and the text detector decides instead.
func languageCode(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) == 2 {
		return name
	}
	code, ok := languageNames[name]
	if !ok {
		return ""
	}
	return code
}

var languageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"portuguese": "pt",
	"italian":    "it",
	"dutch":      "nl",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"hindi":      "hi",
	"turkish":    "tr",
	"polish":     "pl",
	"ukrainian":  "uk",
}
