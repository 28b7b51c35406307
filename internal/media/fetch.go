// Package media downloads inbound voice notes and normalizes them for
// transcription.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/voxlate/internal/retry"
)

// maxAudioSize caps downloads. The transcription API rejects files
// over 25MB anyway.
const maxAudioSize = 25 * 1024 * 1024

// Fetcher downloads media URLs with basic auth. Twilio media URLs
// require the account credentials.
type Fetcher struct {
	client   *http.Client
	username string
	password string
	dir      string
}

// NewFetcher builds a fetcher. Empty credentials skip basic auth.
func NewFetcher(username, password string) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		username: username,
		password: password,
		dir:      os.TempDir(),
	}
}

// Fetch downloads url to a temp file and returns its path plus a
// cleanup func that removes it. The extension comes from the content
// type so downstream tools can sniff the container format. Twilio
// media is sometimes not yet available when the webhook fires, so
// transient failures are retried with backoff.
func (f *Fetcher) Fetch(ctx context.Context, url, contentType string) (string, func(), error) {
	path, res := retry.DoWithValue(ctx, retry.DefaultConfig(), func() (string, error) {
		return f.fetchOnce(ctx, url, contentType)
	})
	if res.Err != nil {
		return "", nil, res.Err
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("fetch media: %w", err))
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch media: status %d", resp.StatusCode)
		// Auth and client errors will not heal; 404 can, while
		// Twilio finishes writing the media resource.
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode < 500 {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}

	path := filepath.Join(f.dir, uuid.NewString()+ExtensionFor(contentType))
	out, err := os.Create(path) // #nosec G304 -- path is built from a fresh uuid
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("fetch media: %w", err))
	}

	_, err = io.Copy(out, io.LimitReader(resp.Body, maxAudioSize))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("fetch media: %w", err)
	}

	return path, nil
}

// ExtensionFor maps a media content type to a file extension.
// WhatsApp voice notes arrive as audio/ogg; forwarded audio can be
// mpeg or mp4.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/ogg", "application/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "video/mp4", "audio/x-m4a", "audio/m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/amr":
		return ".amr"
	default:
		return ".dat"
	}
}
