package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
)

// Synthesizer produces MP3 audio for translated text.
type Synthesizer struct {
	api     api
	catalog *Catalog
	cfg     config.SpeechConfig
	metrics *observability.Metrics
}

// New connects to Google Cloud text-to-speech. metrics may be nil.
func New(ctx context.Context, cfg config.SpeechConfig, metrics *observability.Metrics) (*Synthesizer, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("texttospeech client: %w", err)
	}
	return NewWithAPI(client, cfg, metrics), nil
}

// NewWithAPI wraps an existing client, for tests.
func NewWithAPI(client api, cfg config.SpeechConfig, metrics *observability.Metrics) *Synthesizer {
	return &Synthesizer{
		api:     client,
		catalog: NewCatalog(client),
		cfg:     cfg,
		metrics: metrics,
	}
}

// candidate is one synthesis attempt: a named voice, or just a
// language code leaving the voice to the service.
type candidate struct {
	name string
	lang string
}

// Synthesize renders text as MP3 in the given language, with the
// requested voice gender. Attempts run down an ordered candidate list:
// the catalog's pick, then the bare language code, then the configured
// default voice. The first success wins.
func (s *Synthesizer) Synthesize(ctx context.Context, text, lang, gender string) ([]byte, error) {
	candidates := make([]candidate, 0, 3)

	if v, ok, err := s.catalog.Select(ctx, lang, gender); err == nil && ok {
		candidates = append(candidates, candidate{name: v.Name, lang: v.LanguageCode})
	}
	candidates = append(candidates,
		candidate{lang: regionFor(lang)},
		candidate{name: s.cfg.DefaultVoice, lang: s.cfg.DefaultLanguage},
	)

	var lastErr error
	for _, c := range candidates {
		audio, err := s.synthesizeOnce(ctx, text, c)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no synthesis candidates")
	}
	return nil, fmt.Errorf("synthesize: %w", lastErr)
}

func (s *Synthesizer) synthesizeOnce(ctx context.Context, text string, c candidate) ([]byte, error) {
	start := time.Now()
	resp, err := s.api.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: c.lang,
			Name:         c.name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	s.record(err, start)
	if err != nil {
		return nil, err
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, errors.New("empty audio content")
	}
	return resp.GetAudioContent(), nil
}

func (s *Synthesizer) record(err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordVendorRequest("google_tts", status, time.Since(start).Seconds())
}

// regionFor widens a bare ISO code into the region code the service
// prefers. Unknown codes pass through; the API accepts plain prefixes
// for most languages.
func regionFor(lang string) string {
	switch lang {
	case "en":
		return "en-US"
	case "es":
		return "es-ES"
	case "fr":
		return "fr-FR"
	case "de":
		return "de-DE"
	case "pt":
		return "pt-BR"
	default:
		return lang
	}
}
