// Package speech synthesizes translated text into spoken audio with
// Google Cloud text-to-speech. Voice selection runs off a catalog that
// is fetched once per process and cached for its lifetime.
package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
)

// api is the slice of the text-to-speech client this package uses.
type api interface {
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// Voice is one catalog entry.
type Voice struct {
	Name         string
	LanguageCode string
	Gender       string // MALE or FEMALE
	Tier         int
}

// Tier ranks, best first: neural beats wavenet beats standard.
const (
	tierNeural   = 3
	tierWavenet  = 2
	tierStandard = 1
)

// tierOf ranks a voice by its name. Google encodes the synthesis
// technology in the voice name.
func tierOf(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "neural"):
		return tierNeural
	case strings.Contains(n, "wavenet"):
		return tierWavenet
	case strings.Contains(n, "standard"):
		return tierStandard
	default:
		return 0
	}
}

// Catalog groups available voices by two-letter language prefix. It is
// populated lazily on first use and never invalidated; the set of
// Google voices does not change within a process lifetime worth caring
// about.
type Catalog struct {
	mu       sync.Mutex
	loaded   bool
	byPrefix map[string][]Voice
	api      api
}

// NewCatalog builds an empty catalog over the given client.
func NewCatalog(client api) *Catalog {
	return &Catalog{api: client, byPrefix: make(map[string][]Voice)}
}

// ensure populates the catalog exactly once.
func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	resp, err := c.api.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}

	for _, v := range resp.GetVoices() {
		if len(v.GetLanguageCodes()) == 0 {
			continue
		}
		var gender string
		switch v.GetSsmlGender() {
		case texttospeechpb.SsmlVoiceGender_MALE:
			gender = "MALE"
		case texttospeechpb.SsmlVoiceGender_FEMALE:
			gender = "FEMALE"
		default:
			continue
		}
		for _, code := range v.GetLanguageCodes() {
			prefix := strings.ToLower(code)
			if len(prefix) > 2 {
				prefix = prefix[:2]
			}
			c.byPrefix[prefix] = append(c.byPrefix[prefix], Voice{
				Name:         v.GetName(),
				LanguageCode: code,
				Gender:       gender,
				Tier:         tierOf(v.GetName()),
			})
		}
	}

	c.loaded = true
	return nil
}

// Select picks the best voice for a language and gender: highest tier
// among gender matches, with en-US preferred for English. The bool is
// false when the language has no matching voice at all.
func (c *Catalog) Select(ctx context.Context, lang, gender string) (Voice, bool, error) {
	if err := c.ensure(ctx); err != nil {
		return Voice{}, false, err
	}

	prefix := strings.ToLower(lang)
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}

	c.mu.Lock()
	voices := c.byPrefix[prefix]
	c.mu.Unlock()
	if len(voices) == 0 {
		return Voice{}, false, nil
	}

	best := Voice{Tier: -1}
	for _, v := range voices {
		if v.Gender != gender {
			continue
		}
		if better(v, best, prefix) {
			best = v
		}
	}
	if best.Tier >= 0 {
		return best, true, nil
	}

	// No gender match: take the best voice of any gender rather than
	// failing the whole synthesis.
	for _, v := range voices {
		if better(v, best, prefix) {
			best = v
		}
	}
	return best, best.Tier >= 0, nil
}

func better(candidate, current Voice, prefix string) bool {
	if candidate.Tier != current.Tier {
		return candidate.Tier > current.Tier
	}
	// Same tier: for English prefer the US region.
	if prefix == "en" {
		candidateUS := strings.EqualFold(candidate.LanguageCode, "en-US")
		currentUS := strings.EqualFold(current.LanguageCode, "en-US")
		if candidateUS != currentUS {
			return candidateUS
		}
	}
	return false
}
