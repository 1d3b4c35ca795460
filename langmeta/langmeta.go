// Package langmeta provides a shared language metadata registry
// (English names, native names and emoji flags) used in AI prompts and
// user-facing status messages.
package langmeta

import "strings"

// Meta describes language display metadata.
type Meta struct {
	// English is the English language name used in translation prompts.
	English string
	// Name is the native language name shown to users.
	Name string
	Flag string
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"ar":    {English: "Arabic", Name: "العربية", Flag: "🇸🇦"},
	"be":    {English: "Belarusian", Name: "Беларуская", Flag: "🇧🇾"},
	"bg":    {English: "Bulgarian", Name: "Български", Flag: "🇧🇬"},
	"cs":    {English: "Czech", Name: "Čeština", Flag: "🇨🇿"},
	"de":    {English: "German", Name: "Deutsch", Flag: "🇩🇪"},
	"en":    {English: "English", Name: "English", Flag: "🇬🇧"},
	"en-US": {English: "English (US)", Name: "English (US)", Flag: "🇺🇸"},
	"es":    {English: "Spanish", Name: "Español", Flag: "🇪🇸"},
	"fr":    {English: "French", Name: "Français", Flag: "🇫🇷"},
	"it":    {English: "Italian", Name: "Italiano", Flag: "🇮🇹"},
	"ja":    {English: "Japanese", Name: "日本語", Flag: "🇯🇵"},
	"kk":    {English: "Kazakh", Name: "Қазақша", Flag: "🇰🇿"},
	"ko":    {English: "Korean", Name: "한국어", Flag: "🇰🇷"},
	"pl":    {English: "Polish", Name: "Polski", Flag: "🇵🇱"},
	"pt":    {English: "Portuguese", Name: "Português", Flag: "🇵🇹"},
	"pt-BR": {English: "Brazilian Portuguese", Name: "Português (Brasil)", Flag: "🇧🇷"},
	"ru":    {English: "Russian", Name: "Русский", Flag: "🇷🇺"},
	"sr":    {English: "Serbian", Name: "Српски", Flag: "🇷🇸"},
	"tr":    {English: "Turkish", Name: "Türkçe", Flag: "🇹🇷"},
	"uk":    {English: "Ukrainian", Name: "Українська", Flag: "🇺🇦"},
	"zh":    {English: "Chinese", Name: "中文", Flag: "🇨🇳"},
	"zh-CN": {English: "Simplified Chinese", Name: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {English: "Traditional Chinese", Name: "繁體中文", Flag: "🇹🇼"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks (ru-RU → ru).
// Unknown codes resolve to the code itself.
func Resolve(lang string) Meta {
	if m, ok := Registry[lang]; ok {
		return m
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{English: lang, Name: lang}
}

// Label returns "Name Flag", or just the name when no flag is known.
func (m Meta) Label() string {
	if m.Flag == "" {
		return m.Name
	}
	return m.Name + " " + m.Flag
}
