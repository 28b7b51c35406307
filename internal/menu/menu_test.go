package menu

import (
	"strings"
	"testing"
)

func TestMatchDigits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "en"},
		{"2", "es"},
		{"3", "fr"},
		{"4", "de"},
		{"5", "pt"},
	}
	for _, tc := range cases {
		l := Match(tc.in)
		if l == nil || l.Code != tc.want {
			t.Errorf("Match(%q) = %v, want %s", tc.in, l, tc.want)
		}
	}
}

func TestMatchNamesAndCodes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"french", "fr"},
		{"FRENCH", "fr"},
		{"Français", "fr"},
		{"fr", "fr"},
		{" es ", "es"},
		{"Deutsch", "de"},
		{"português", "pt"},
	}
	for _, tc := range cases {
		l := Match(tc.in)
		if l == nil || l.Code != tc.want {
			t.Errorf("Match(%q) = %v, want %s", tc.in, l, tc.want)
		}
	}
}

func TestMatchRejectsJunk(t *testing.T) {
	for _, in := range []string{"", "0", "6", "klingon", "hello there"} {
		if l := Match(in); l != nil {
			t.Errorf("Match(%q) = %v, want nil", in, l)
		}
	}
}

func TestWelcomeListsAllLanguages(t *testing.T) {
	w := Welcome(DefaultLang)
	for _, l := range Languages {
		if !strings.Contains(w, l.Digit+". "+l.Native) {
			t.Errorf("welcome menu missing entry for %s: %q", l.Code, w)
		}
	}
}

func TestCopyFallsBackToEnglish(t *testing.T) {
	if Welcome("xx") != Welcome("en") {
		t.Error("unknown language should fall back to English copy")
	}
}

func TestAllLanguagesHaveFullCopy(t *testing.T) {
	keys := []string{"welcome", "explainer", "receive", "must_differ", "gender", "complete", "paywall", "checkout", "failed"}
	for _, l := range Languages {
		m, ok := copyByLang[l.Code]
		if !ok {
			t.Errorf("no copy for language %s", l.Code)
			continue
		}
		for _, k := range keys {
			if m[k] == "" {
				t.Errorf("language %s missing copy key %s", l.Code, k)
			}
		}
		if _, ok := genderWords[l.Code]; !ok {
			t.Errorf("language %s missing gender words", l.Code)
		}
	}
}

func TestMatchGender(t *testing.T) {
	cases := []struct {
		lang, in, want string
	}{
		{"en", "1", "MALE"},
		{"en", "2", "FEMALE"},
		{"en", "male", "MALE"},
		{"en", "Female", "FEMALE"},
		{"es", "masculina", "MALE"},
		{"fr", "féminine", "FEMALE"},
		{"es", "3", ""},
		{"en", "robot", ""},
	}
	for _, tc := range cases {
		if got := MatchGender(tc.lang, tc.in); got != tc.want {
			t.Errorf("MatchGender(%q, %q) = %q, want %q", tc.lang, tc.in, got, tc.want)
		}
	}
}
