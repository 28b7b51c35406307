package menu

import (
	"fmt"
	"strings"
)

// list renders the language menu shown in prompts. Native names so
// every reader finds their own language.
func list() string {
	var b strings.Builder
	for _, l := range Languages {
		fmt.Fprintf(&b, "%s. %s\n", l.Digit, l.Native)
	}
	return strings.TrimRight(b.String(), "\n")
}

// text returns the localized string for key, falling back to English
// for unknown languages.
func text(lang, key string) string {
	if m, ok := copyByLang[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return copyByLang[DefaultLang][key]
}

// Welcome is the first prompt, shown in the default language.
func Welcome(lang string) string {
	return text(lang, "welcome") + "\n\n" + list()
}

// Explainer describes how the bot works, in the user's language.
func Explainer(lang string) string {
	return text(lang, "explainer")
}

// ReceiveMenu asks for the target language.
func ReceiveMenu(lang string) string {
	return text(lang, "receive") + "\n\n" + list()
}

// MustDiffer rejects target == source.
func MustDiffer(lang string) string {
	return text(lang, "must_differ")
}

// GenderPrompt asks for the synthesized voice gender.
func GenderPrompt(lang string) string {
	return text(lang, "gender")
}

// SetupComplete confirms the wizard is done.
func SetupComplete(lang string) string {
	return text(lang, "complete")
}

// Paywall lists the purchase tiers once the free quota is spent.
func Paywall(lang string) string {
	return text(lang, "paywall")
}

// CheckoutLink wraps the hosted checkout URL.
func CheckoutLink(lang, url string) string {
	return text(lang, "checkout") + "\n" + url
}

// ProcessingFailed is the generic apology for pipeline errors.
func ProcessingFailed(lang string) string {
	return text(lang, "failed")
}

// Transcript formats the voice-note transcript reply.
func Transcript(text string) string {
	return "🎙️ _" + text + "_"
}

// MatchGender resolves gender input: digit 1/2 or the localized word.
// Returns "MALE", "FEMALE", or "".
func MatchGender(lang, input string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	switch in {
	case "1":
		return "MALE"
	case "2":
		return "FEMALE"
	}
	for _, l := range []string{lang, DefaultLang} {
		m, ok := genderWords[l]
		if !ok {
			continue
		}
		if in == m[0] {
			return "MALE"
		}
		if in == m[1] {
			return "FEMALE"
		}
	}
	return ""
}

// genderWords maps lang -> [male word, female word], lowercase.
var genderWords = map[string][2]string{
	"en": {"male", "female"},
	"es": {"masculina", "femenina"},
	"fr": {"masculine", "féminine"},
	"de": {"männlich", "weiblich"},
	"pt": {"masculina", "feminina"},
}

var copyByLang = map[string]map[string]string{
	"en": {
		"welcome":     "👋 Welcome! I translate your voice notes and texts.\nWhich language do you speak? Reply with a number:",
		"explainer":   "Great! Here's how it works: send me a voice note or a text and I'll reply with the translation. Voice notes also come back as spoken audio.",
		"receive":     "Which language should your messages be translated into? Reply with a number:",
		"must_differ": "⚠️ That's the same as the language you speak. Please pick a different one:",
		"gender":      "Last step! Which voice should read your translations?\n1. Male\n2. Female",
		"complete":    "✅ All set! Send me a voice note or a text and I'll translate it.",
		"paywall":     "🔒 You've used your free translations. Pick a plan to continue:\n1. Monthly\n2. Annual\n3. Lifetime",
		"checkout":    "Tap to complete your purchase:",
		"failed":      "😕 Sorry, I couldn't process that message. Please try again.",
	},
	"es": {
		"welcome":     "👋 ¡Bienvenido! Traduzco tus notas de voz y mensajes.\n¿Qué idioma hablas? Responde con un número:",
		"explainer":   "¡Perfecto! Así funciona: envíame una nota de voz o un texto y te responderé con la traducción. Las notas de voz también vuelven como audio.",
		"receive":     "¿A qué idioma quieres que traduzca tus mensajes? Responde con un número:",
		"must_differ": "⚠️ Es el mismo idioma que hablas. Elige uno diferente:",
		"gender":      "¡Último paso! ¿Qué voz debe leer tus traducciones?\n1. Masculina\n2. Femenina",
		"complete":    "✅ ¡Listo! Envíame una nota de voz o un texto y lo traduciré.",
		"paywall":     "🔒 Has agotado tus traducciones gratuitas. Elige un plan para continuar:\n1. Mensual\n2. Anual\n3. De por vida",
		"checkout":    "Toca para completar tu compra:",
		"failed":      "😕 Lo siento, no pude procesar ese mensaje. Inténtalo de nuevo.",
	},
	"fr": {
		"welcome":     "👋 Bienvenue ! Je traduis vos notes vocales et vos messages.\nQuelle langue parlez-vous ? Répondez avec un numéro :",
		"explainer":   "Parfait ! Voici comment ça marche : envoyez-moi une note vocale ou un texte et je vous réponds avec la traduction. Les notes vocales reviennent aussi en audio.",
		"receive":     "Dans quelle langue dois-je traduire vos messages ? Répondez avec un numéro :",
		"must_differ": "⚠️ C'est la même langue que celle que vous parlez. Choisissez-en une autre :",
		"gender":      "Dernière étape ! Quelle voix doit lire vos traductions ?\n1. Masculine\n2. Féminine",
		"complete":    "✅ C'est prêt ! Envoyez-moi une note vocale ou un texte et je le traduis.",
		"paywall":     "🔒 Vous avez épuisé vos traductions gratuites. Choisissez une formule pour continuer :\n1. Mensuelle\n2. Annuelle\n3. À vie",
		"checkout":    "Appuyez pour finaliser votre achat :",
		"failed":      "😕 Désolé, je n'ai pas pu traiter ce message. Veuillez réessayer.",
	},
	"de": {
		"welcome":     "👋 Willkommen! Ich übersetze deine Sprachnachrichten und Texte.\nWelche Sprache sprichst du? Antworte mit einer Zahl:",
		"explainer":   "Super! So funktioniert es: Schick mir eine Sprachnachricht oder einen Text und ich antworte mit der Übersetzung. Sprachnachrichten kommen auch als Audio zurück.",
		"receive":     "In welche Sprache soll ich deine Nachrichten übersetzen? Antworte mit einer Zahl:",
		"must_differ": "⚠️ Das ist dieselbe Sprache, die du sprichst. Bitte wähle eine andere:",
		"gender":      "Letzter Schritt! Welche Stimme soll deine Übersetzungen vorlesen?\n1. Männlich\n2. Weiblich",
		"complete":    "✅ Fertig! Schick mir eine Sprachnachricht oder einen Text und ich übersetze ihn.",
		"paywall":     "🔒 Deine kostenlosen Übersetzungen sind aufgebraucht. Wähle einen Plan:\n1. Monatlich\n2. Jährlich\n3. Lebenslang",
		"checkout":    "Tippe, um den Kauf abzuschließen:",
		"failed":      "😕 Entschuldigung, ich konnte diese Nachricht nicht verarbeiten. Bitte versuche es erneut.",
	},
	"pt": {
		"welcome":     "👋 Bem-vindo! Eu traduzo suas notas de voz e mensagens.\nQue idioma você fala? Responda com um número:",
		"explainer":   "Ótimo! Funciona assim: envie uma nota de voz ou um texto e eu respondo com a tradução. Notas de voz também voltam como áudio.",
		"receive":     "Para qual idioma devo traduzir suas mensagens? Responda com um número:",
		"must_differ": "⚠️ É o mesmo idioma que você fala. Escolha outro:",
		"gender":      "Última etapa! Qual voz deve ler suas traduções?\n1. Masculina\n2. Feminina",
		"complete":    "✅ Tudo pronto! Envie uma nota de voz ou um texto e eu traduzo.",
		"paywall":     "🔒 Você usou suas traduções gratuitas. Escolha um plano para continuar:\n1. Mensal\n2. Anual\n3. Vitalício",
		"checkout":    "Toque para concluir sua compra:",
		"failed":      "😕 Desculpe, não consegui processar essa mensagem. Tente novamente.",
	},
}
