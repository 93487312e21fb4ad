package models

import "strings"

type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageSwedish   Language = "sv"
	LanguageUkrainian Language = "uk"
	LanguagePolish    Language = "pl"

	DefaultLanguage = LanguageSwedish
)

var Languages = []Language{
	LanguageEnglish,
	LanguageSwedish,
	LanguageUkrainian,
	LanguagePolish,
}

func (l Language) Valid() bool {
	for _, known := range Languages {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLanguage accepts a bare code ("sv") or a locale tag ("sv-SE").
func ParseLanguage(raw string) (Language, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(raw, "-_"); i > 0 {
		raw = raw[:i]
	}
	l := Language(raw)
	if !l.Valid() {
		return "", false
	}
	return l, true
}

// LocalizedText is a text that may carry one translation per supported language.
type LocalizedText struct {
	Text         string
	Original     Language
	Translations map[Language]string
}

func PlainText(text string) LocalizedText {
	return LocalizedText{Text: text}
}

// Resolve returns the translation for lang, then the one for
// fallback, and finally the untranslated text.
func (lt LocalizedText) Resolve(lang, fallback Language) string {
	if s, ok := lt.Translations[lang]; ok && s != "" {
		return s
	}
	if s, ok := lt.Translations[fallback]; ok && s != "" {
		return s
	}
	return lt.Text
}

func (lt LocalizedText) Clone() LocalizedText {
	if lt.Translations == nil {
		return lt
	}
	out := lt
	out.Translations = make(map[Language]string, len(lt.Translations))
	for k, v := range lt.Translations {
		out.Translations[k] = v
	}
	return out
}
