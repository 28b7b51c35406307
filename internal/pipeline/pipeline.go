// Package pipeline runs one message through transcription, translation,
// and synthesis, and sends the replies.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/voxlate/internal/media"
	"github.com/haasonsaas/voxlate/internal/menu"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/store"
	"github.com/haasonsaas/voxlate/internal/transcribe"
)

// Sender delivers outbound messages on the user's channel. A call
// carries either text or a media URL, never both.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, mediaURL string) error
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (*transcribe.Result, error)
}

// Translator translates and detects languages.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// Synthesizer renders text as MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang, gender string) ([]byte, error)
}

// Uploader stores audio and returns a public URL.
type Uploader interface {
	PutAudio(ctx context.Context, audio []byte) (string, error)
}

// Fetcher downloads a media URL to a temp file.
type Fetcher interface {
	Fetch(ctx context.Context, url, contentType string) (string, func(), error)
}

// Transcoder normalizes audio for transcription.
type Transcoder interface {
	ToWAV(ctx context.Context, inPath string) (string, func(), error)
}

// Recorder persists usage and the translation log.
type Recorder interface {
	AddFreeUsage(ctx context.Context, phone string, credits int) error
	LogTranslation(ctx context.Context, rec *store.TranslationRecord) error
}

// Inbound is the message content handed to the pipeline. Voice notes
// arrive as a URL (Twilio) or as raw bytes (direct WhatsApp).
type Inbound struct {
	Body             string
	MediaURL         string
	MediaContentType string
	MediaData        []byte
}

// HasVoice reports whether the inbound carries audio.
func (in *Inbound) HasVoice() bool {
	return in.MediaURL != "" || len(in.MediaData) > 0
}

// Pipeline wires the stages together.
type Pipeline struct {
	fetcher    Fetcher
	transcoder Transcoder
	stt        Transcriber
	translator Translator
	tts        Synthesizer
	uploader   Uploader
	recorder   Recorder
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// New builds a pipeline. metrics may be nil.
func New(fetcher Fetcher, transcoder Transcoder, stt Transcriber, translator Translator,
	tts Synthesizer, uploader Uploader, recorder Recorder,
	logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		transcoder: transcoder,
		stt:        stt,
		translator: translator,
		tts:        tts,
		uploader:   uploader,
		recorder:   recorder,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run translates one message for a configured user and sends the
// replies. An error means nothing useful was sent and the caller
// should apologize to the user. Synthesis failure after a voice note
// is not an error: the transcript and translation are already out.
func (p *Pipeline) Run(ctx context.Context, u *store.User, in *Inbound, send Sender) error {
	original := in.Body
	detected := ""

	if in.HasVoice() {
		text, lang, err := p.transcribeVoice(ctx, in)
		if err != nil {
			return err
		}
		original, detected = text, lang
	}

	if detected == "" {
		lang, err := p.detect(ctx, original)
		if err != nil {
			// Detection is advisory. Fall through with the
			// regular direction.
			p.logger.Warn(ctx, "language detection failed", "error", err)
		} else {
			detected = lang
		}
	}

	// Messages already in the user's target language flip direction:
	// the sender is forwarding something to translate back.
	dest := u.TargetLang
	if detected == u.TargetLang {
		dest = u.SourceLang
	}

	translated, err := p.translate(ctx, original, dest)
	if err != nil {
		return err
	}

	p.recordUsage(ctx, u, original, translated, detected, dest)

	if !in.HasVoice() {
		if p.metrics != nil {
			p.metrics.TranslationCompleted("text")
		}
		return send.SendText(ctx, u.Phone, translated)
	}

	if err := send.SendText(ctx, u.Phone, menu.Transcript(original)); err != nil {
		return err
	}
	if err := send.SendText(ctx, u.Phone, translated); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.TranslationCompleted("voice")
	}

	p.sendSpokenReply(ctx, u, translated, dest, send)
	return nil
}

// transcribeVoice materializes the audio, normalizes it, and runs
// speech-to-text. Temp files are removed before returning.
func (p *Pipeline) transcribeVoice(ctx context.Context, in *Inbound) (string, string, error) {
	path, cleanup, err := p.materialize(ctx, in)
	if err != nil {
		return "", "", err
	}
	defer cleanup()

	start := time.Now()
	wavPath, wavCleanup, err := p.transcoder.ToWAV(ctx, path)
	if err != nil {
		return "", "", err
	}
	defer wavCleanup()
	p.observe("transcode", start)

	start = time.Now()
	res, err := p.stt.Transcribe(ctx, wavPath)
	if err != nil {
		return "", "", err
	}
	p.observe("transcribe", start)
	return res.Text, res.Language, nil
}

func (p *Pipeline) materialize(ctx context.Context, in *Inbound) (string, func(), error) {
	if len(in.MediaData) > 0 {
		path := filepath.Join(os.TempDir(), uuid.NewString()+media.ExtensionFor(in.MediaContentType))
		if err := os.WriteFile(path, in.MediaData, 0o600); err != nil {
			return "", nil, err
		}
		return path, func() { _ = os.Remove(path) }, nil
	}

	start := time.Now()
	path, cleanup, err := p.fetcher.Fetch(ctx, in.MediaURL, in.MediaContentType)
	if err != nil {
		return "", nil, err
	}
	p.observe("fetch", start)
	return path, cleanup, nil
}

func (p *Pipeline) detect(ctx context.Context, text string) (string, error) {
	start := time.Now()
	lang, err := p.translator.DetectLanguage(ctx, text)
	if err != nil {
		return "", err
	}
	p.observe("detect", start)
	return lang, nil
}

func (p *Pipeline) translate(ctx context.Context, text, dest string) (string, error) {
	start := time.Now()
	out, err := p.translator.Translate(ctx, text, dest)
	if err != nil {
		return "", err
	}
	p.observe("translate", start)
	return out, nil
}

// recordUsage charges the free allowance and appends the log row.
// Bookkeeping failures are logged, not fatal: the user already has a
// translation in flight.
func (p *Pipeline) recordUsage(ctx context.Context, u *store.User, original, translated, detected, dest string) {
	const credits = 1
	if err := p.recorder.AddFreeUsage(ctx, u.Phone, credits); err != nil {
		p.logger.Error(ctx, "usage accounting failed", "error", err)
	} else if u.Plan == store.PlanFree {
		u.FreeUsed += credits
	}
	if err := p.recorder.LogTranslation(ctx, &store.TranslationRecord{
		Phone:      u.Phone,
		Original:   original,
		Translated: translated,
		SourceLang: detected,
		TargetLang: dest,
		Credits:    credits,
	}); err != nil {
		p.logger.Error(ctx, "translation log failed", "error", err)
	}
}

// sendSpokenReply synthesizes and sends the audio message. Any failure
// is tolerated; the text replies stand on their own.
func (p *Pipeline) sendSpokenReply(ctx context.Context, u *store.User, translated, dest string, send Sender) {
	start := time.Now()
	audio, err := p.tts.Synthesize(ctx, translated, dest, string(u.Gender))
	if err != nil {
		p.logger.Warn(ctx, "speech synthesis failed, sending text only", "error", err)
		return
	}
	p.observe("synthesize", start)

	start = time.Now()
	url, err := p.uploader.PutAudio(ctx, audio)
	if err != nil {
		p.logger.Warn(ctx, "audio upload failed, sending text only", "error", err)
		return
	}
	p.observe("upload", start)

	if err := send.SendMedia(ctx, u.Phone, url); err != nil {
		p.logger.Warn(ctx, "audio reply failed", "error", err)
	}
}

func (p *Pipeline) observe(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, time.Since(start).Seconds())
	}
}
