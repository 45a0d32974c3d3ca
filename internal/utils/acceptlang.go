package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// SupportedLocales lists the locales with server-side translations.
var SupportedLocales = []string{"en", "zh"}

// DetermineLocale resolves the response locale from an explicit query
// parameter, then the Accept-Language header, then def, and finally the
// first supported locale. Matching follows BCP 47, so en-US or zh-Hans
// resolve to their base language.
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	if len(supported) == 0 {
		return "en"
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, language.Make(s))
	}
	matcher := language.NewMatcher(tags)
	pick := func(desired ...language.Tag) (string, bool) {
		if len(desired) == 0 {
			return "", false
		}
		_, i, conf := matcher.Match(desired...)
		if conf == language.No {
			return "", false
		}
		return strings.ToLower(supported[i]), true
	}
	parse := func(raw string) []language.Tag {
		raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
		if raw == "" {
			return nil
		}
		t, err := language.Parse(raw)
		if err != nil {
			return nil
		}
		return []language.Tag{t}
	}

	if v, ok := pick(parse(queryLang)...); ok {
		return v
	}
	if v, ok := pick(accepted(acceptLang)...); ok {
		return v
	}
	if v, ok := pick(parse(def)...); ok {
		return v
	}
	return strings.ToLower(supported[0])
}

// accepted returns the tags of an Accept-Language header in preference
// order, dropping refused (q=0) entries. A malformed header yields nothing.
func accepted(header string) []language.Tag {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	tags, weights, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	out := make([]language.Tag, 0, len(tags))
	for i, t := range tags {
		if weights[i] > 0 {
			out = append(out, t)
		}
	}
	return out
}
