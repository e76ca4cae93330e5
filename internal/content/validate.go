package content

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ValidateRecord checks a record for mutation through the Registry: the base language
// is present, availableLanguages and translations are in lockstep, titles are set and
// slugs are URL-safe.
func (s Settings) ValidateRecord(rec ArticleRecord) error {
	return s.validateRecord(rec, true)
}

// validateRecord with strict=false is used for registries submitted by the editor, which
// historically carry translations for languages that are no longer available.
func (s Settings) validateRecord(rec ArticleRecord, strict bool) error {
	if !IsToken(rec.Code) {
		return invalid("invalid article code %q", rec.Code)
	}

	if rec.Date == "" {
		if strict {
			return invalid("article %s: date is required", rec.Code)
		}
	} else if _, err := time.Parse(dateLayout, rec.Date); err != nil {
		return invalid("article %s: date %q is not an ISO 8601 calendar date", rec.Code, rec.Date)
	}

	if len(rec.AvailableLanguages) == 0 {
		return invalid("article %s: availableLanguages is empty", rec.Code)
	}

	seen := make(map[string]struct{}, len(rec.AvailableLanguages))
	for _, lang := range rec.AvailableLanguages {
		if !IsToken(lang) {
			return invalid("article %s: invalid language code %q", rec.Code, lang)
		}
		if _, dup := seen[lang]; dup {
			return invalid("article %s: duplicate language %q", rec.Code, lang)
		}
		seen[lang] = struct{}{}

		tr, ok := rec.Translations[lang]
		if !ok {
			return invalid("article %s: language %q has no translation", rec.Code, lang)
		}
		if strings.TrimSpace(tr.Title) == "" {
			return invalid("article %s: title for %q is empty", rec.Code, lang)
		}
		if strict && !IsURLSafeSlug(tr.Slug) {
			return invalid("article %s: slug %q for %q is not URL-safe", rec.Code, tr.Slug, lang)
		}
	}

	if _, ok := seen[s.BaseLanguage]; !ok {
		return invalid("article %s: base language %q is missing", rec.Code, s.BaseLanguage)
	}

	if strict {
		for lang := range rec.Translations {
			if _, ok := seen[lang]; !ok {
				return invalid("article %s: translation %q is not listed in availableLanguages", rec.Code, lang)
			}
		}
	}

	return nil
}

// IsURLSafeSlug reports whether slug is non-empty and made of RFC 3986 unreserved characters.
func IsURLSafeSlug(slug string) bool {
	if slug == "" {
		return false
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '~':
		default:
			return false
		}
	}
	return true
}
