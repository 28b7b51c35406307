// Package twilio is the Twilio WhatsApp transport: inbound webhook
// parsing with signature verification, and outbound message sends via
// the Messages API.
package twilio

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- Twilio signs webhooks with HMAC-SHA1
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// EmptyTwiML is the immediate webhook acknowledgment. Replies go out
// asynchronously through the Messages API, never in the webhook
// response.
const EmptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Inbound is one parsed webhook delivery.
type Inbound struct {
	MessageSID       string
	From             string // E.164, whatsapp: prefix stripped
	Body             string
	NumMedia         int
	MediaURL         string
	MediaContentType string
}

// Client talks to the Twilio REST API. Safe for concurrent use.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	metrics    *observability.Metrics
}

// New builds a client from config. metrics may be nil.
func New(cfg config.TwilioConfig, metrics *observability.Metrics) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", cfg.AccountSID),
		client:     &http.Client{Timeout: 30 * time.Second},
		metrics:    metrics,
	}, nil
}

// SetBaseURL points the client at a fake API, for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Credentials returns the basic-auth pair for media downloads.
func (c *Client) Credentials() (string, string) {
	return c.accountSID, c.authToken
}

// SendText sends one outbound WhatsApp text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, url.Values{
		"From": {whatsappAddr(c.from)},
		"To":   {whatsappAddr(to)},
		"Body": {body},
	})
}

// SendMedia sends one outbound message carrying a single media URL.
func (c *Client) SendMedia(ctx context.Context, to, mediaURL string) error {
	return c.send(ctx, url.Values{
		"From":     {whatsappAddr(c.from)},
		"To":       {whatsappAddr(to)},
		"MediaUrl": {mediaURL},
	})
}

func (c *Client) send(ctx context.Context, params url.Values) error {
	start := time.Now()
	_, err := c.apiRequest(ctx, "/Messages.json", params)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordVendorRequest("twilio", status, time.Since(start).Seconds())
	}
	return err
}

func (c *Client) apiRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("twilio api error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// VerifyWebhook checks the X-Twilio-Signature header: HMAC-SHA1 over
// the full request URL concatenated with the sorted form parameters,
// base64 encoded.
func (c *Client) VerifyWebhook(signature, fullURL string, params url.Values) bool {
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sigString := fullURL
	for _, k := range keys {
		for _, v := range params[k] {
			sigString += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(c.authToken))
	mac.Write([]byte(sigString))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// ParseInbound extracts the message fields from webhook form values.
func ParseInbound(form url.Values) Inbound {
	numMedia := 0
	if n := form.Get("NumMedia"); n != "" {
		_, _ = fmt.Sscanf(n, "%d", &numMedia)
	}
	return Inbound{
		MessageSID:       form.Get("MessageSid"),
		From:             stripWhatsApp(form.Get("From")),
		Body:             form.Get("Body"),
		NumMedia:         numMedia,
		MediaURL:         form.Get("MediaUrl0"),
		MediaContentType: form.Get("MediaContentType0"),
	}
}

func whatsappAddr(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

func stripWhatsApp(addr string) string {
	return strings.TrimPrefix(addr, "whatsapp:")
}
