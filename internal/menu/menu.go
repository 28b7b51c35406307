// Package menu holds the static language table and the user-facing
// copy for the onboarding wizard and paywall, localized into each
// supported language.
package menu

import "strings"

// Language is one selectable entry.
type Language struct {
	// Digit is the menu position ("1".."5").
	Digit string
	// Code is the ISO 639-1 code.
	Code string
	// Name is the English name.
	Name string
	// Native is the name in the language itself.
	Native string
}

// Languages is the fixed menu, in display order. Digits are assigned
// by position.
var Languages = []Language{
	{Digit: "1", Code: "en", Name: "English", Native: "English"},
	{Digit: "2", Code: "es", Name: "Spanish", Native: "Español"},
	{Digit: "3", Code: "fr", Name: "French", Native: "Français"},
	{Digit: "4", Code: "de", Name: "German", Native: "Deutsch"},
	{Digit: "5", Code: "pt", Name: "Portuguese", Native: "Português"},
}

// Match resolves user input to a language. Accepts the menu digit, the
// ISO code, the English name, or the native name, case-insensitively.
// Returns nil for anything else.
func Match(input string) *Language {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" {
		return nil
	}
	for i := range Languages {
		l := &Languages[i]
		if in == l.Digit || in == l.Code ||
			in == strings.ToLower(l.Name) || in == strings.ToLower(l.Native) {
			return l
		}
	}
	return nil
}

// ByCode looks up a language by ISO code.
func ByCode(code string) *Language {
	code = strings.ToLower(strings.TrimSpace(code))
	for i := range Languages {
		if Languages[i].Code == code {
			return &Languages[i]
		}
	}
	return nil
}

// DefaultLang is the copy language before the user has chosen one.
const DefaultLang = "en"
