package speech

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/haasonsaas/voxlate/internal/config"
)

type fakeAPI struct {
	voices     []*texttospeechpb.Voice
	listCalls  int
	listErr    error
	synthCalls []*texttospeechpb.SynthesizeSpeechRequest
	// failVoices names voices whose synthesis fails.
	failVoices map[string]bool
	failAll    bool
}

func (f *fakeAPI) ListVoices(context.Context, *texttospeechpb.ListVoicesRequest, ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &texttospeechpb.ListVoicesResponse{Voices: f.voices}, nil
}

func (f *fakeAPI) SynthesizeSpeech(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest, _ ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.synthCalls = append(f.synthCalls, req)
	if f.failAll || f.failVoices[req.GetVoice().GetName()] {
		return nil, errors.New("synthesis unavailable")
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("mp3bytes")}, nil
}

func voice(name, code string, gender texttospeechpb.SsmlVoiceGender) *texttospeechpb.Voice {
	return &texttospeechpb.Voice{Name: name, LanguageCodes: []string{code}, SsmlGender: gender}
}

func spanishVoices() []*texttospeechpb.Voice {
	return []*texttospeechpb.Voice{
		voice("es-ES-Standard-A", "es-ES", texttospeechpb.SsmlVoiceGender_FEMALE),
		voice("es-ES-Wavenet-B", "es-ES", texttospeechpb.SsmlVoiceGender_MALE),
		voice("es-ES-Neural2-C", "es-ES", texttospeechpb.SsmlVoiceGender_FEMALE),
		voice("es-US-Wavenet-A", "es-US", texttospeechpb.SsmlVoiceGender_FEMALE),
	}
}

func TestSelectPrefersNeuralGenderMatch(t *testing.T) {
	c := NewCatalog(&fakeAPI{voices: spanishVoices()})

	v, ok, err := c.Select(context.Background(), "es", "FEMALE")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if v.Name != "es-ES-Neural2-C" {
		t.Errorf("selected %s, want es-ES-Neural2-C", v.Name)
	}
}

func TestSelectFallsBackAcrossGender(t *testing.T) {
	api := &fakeAPI{voices: []*texttospeechpb.Voice{
		voice("es-ES-Wavenet-B", "es-ES", texttospeechpb.SsmlVoiceGender_MALE),
	}}
	c := NewCatalog(api)

	v, ok, err := c.Select(context.Background(), "es", "FEMALE")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if v.Name != "es-ES-Wavenet-B" {
		t.Errorf("selected %s, want the only available voice", v.Name)
	}
}

func TestSelectPrefersUSEnglish(t *testing.T) {
	api := &fakeAPI{voices: []*texttospeechpb.Voice{
		voice("en-GB-Wavenet-A", "en-GB", texttospeechpb.SsmlVoiceGender_FEMALE),
		voice("en-US-Wavenet-C", "en-US", texttospeechpb.SsmlVoiceGender_FEMALE),
	}}
	c := NewCatalog(api)

	v, ok, err := c.Select(context.Background(), "en", "FEMALE")
	if err != nil || !ok {
		t.Fatalf("Select: ok=%v err=%v", ok, err)
	}
	if v.LanguageCode != "en-US" {
		t.Errorf("selected %s, want en-US region", v.LanguageCode)
	}
}

func TestCatalogPopulatesOnce(t *testing.T) {
	api := &fakeAPI{voices: spanishVoices()}
	c := NewCatalog(api)

	for i := 0; i < 3; i++ {
		if _, _, err := c.Select(context.Background(), "es", "MALE"); err != nil {
			t.Fatal(err)
		}
	}
	if api.listCalls != 1 {
		t.Errorf("ListVoices called %d times, want 1", api.listCalls)
	}
}

func TestSelectUnknownLanguage(t *testing.T) {
	c := NewCatalog(&fakeAPI{voices: spanishVoices()})
	_, ok, err := c.Select(context.Background(), "zz", "MALE")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("unknown language should have no voice")
	}
}

func testConfig() config.SpeechConfig {
	return config.SpeechConfig{DefaultVoice: "en-US-Wavenet-F", DefaultLanguage: "en-US"}
}

func TestSynthesizeUsesCatalogVoice(t *testing.T) {
	api := &fakeAPI{voices: spanishVoices()}
	s := NewWithAPI(api, testConfig(), nil)

	audio, err := s.Synthesize(context.Background(), "hola", "es", "FEMALE")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3bytes" {
		t.Errorf("audio = %q", audio)
	}
	if len(api.synthCalls) != 1 || api.synthCalls[0].GetVoice().GetName() != "es-ES-Neural2-C" {
		t.Errorf("unexpected synth calls: %+v", api.synthCalls)
	}
	if api.synthCalls[0].GetAudioConfig().GetAudioEncoding() != texttospeechpb.AudioEncoding_MP3 {
		t.Error("audio encoding must be MP3")
	}
}

func TestSynthesizeFallsBackThroughCandidates(t *testing.T) {
	api := &fakeAPI{
		voices:     spanishVoices(),
		failVoices: map[string]bool{"es-ES-Neural2-C": true},
	}
	s := NewWithAPI(api, testConfig(), nil)

	audio, err := s.Synthesize(context.Background(), "hola", "es", "FEMALE")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio) == 0 {
		t.Fatal("expected audio from fallback candidate")
	}
	if len(api.synthCalls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(api.synthCalls))
	}
	// Second attempt is the bare language code.
	second := api.synthCalls[1].GetVoice()
	if second.GetName() != "" || second.GetLanguageCode() != "es-ES" {
		t.Errorf("fallback voice = %+v", second)
	}
}

func TestSynthesizeAllCandidatesFail(t *testing.T) {
	api := &fakeAPI{voices: spanishVoices(), failAll: true}
	s := NewWithAPI(api, testConfig(), nil)

	if _, err := s.Synthesize(context.Background(), "hola", "es", "FEMALE"); err == nil {
		t.Fatal("expected error when every candidate fails")
	}
	if len(api.synthCalls) != 3 {
		t.Errorf("expected 3 attempts (voice, language, default), got %d", len(api.synthCalls))
	}
}

func TestTierOf(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"es-ES-Neural2-C", tierNeural},
		{"en-US-Wavenet-F", tierWavenet},
		{"de-DE-Standard-A", tierStandard},
		{"xx-XX-Custom-A", 0},
	}
	for _, tc := range cases {
		if got := tierOf(tc.name); got != tc.want {
			t.Errorf("tierOf(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}
