// Package i18n localizes the messages ftlbot sends to users.
//
// It wraps the gotext library with T and N. Catalogs are embedded in the
// binary (locales/{lang}/LC_MESSAGES/ftlbot.po) and selected by Init.
//
// Usage:
//
//	i18n.Init("")  // auto-detect from LANGUAGE/LC_ALL/LC_MESSAGES/LANG
//	fmt.Println(i18n.T("Cloning repository..."))
//	fmt.Printf(i18n.N("Found %d file", "Found %d files", n), n)
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "ftlbot"

var (
	po   *gotext.Locale
	lang = "en"
)

// Init selects the catalog for lang. If lang is empty it is detected from
// LANGUAGE, LC_ALL, LC_MESSAGES and LANG, in that order, as GNU gettext
// does. Call it once at startup, before any T or N call.
func Init(l string) {
	if l == "" {
		l = detectLanguage()
	}
	lang = l

	po = gotext.NewLocaleFSWithPath(l, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the language passed to (or detected by) Init.
func Language() string {
	return lang
}

// T translates msgid. Without a translation msgid is returned unchanged.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N translates a message with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		// LANGUAGE is a colon-separated list.
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// ru_RU.UTF-8 -> ru_RU
		if idx := strings.IndexByte(val, '.'); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
