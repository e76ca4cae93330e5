package content

import "slices"

// Translation holds the per-language metadata of an article.
type Translation struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Slug    string `json:"slug"`
}

// ArticleRecord is one entry of the registry, keyed by its code.
type ArticleRecord struct {
	Code               string                 `json:"code"`
	Category           string                 `json:"category"`
	Date               string                 `json:"date"`
	Image              string                 `json:"image"`
	AvailableLanguages []string               `json:"availableLanguages"`
	Translations       map[string]Translation `json:"translations"`
}

// HasLanguage reports whether lang is listed in AvailableLanguages.
func (r ArticleRecord) HasLanguage(lang string) bool {
	return slices.Contains(r.AvailableLanguages, lang)
}

// Clone returns a deep copy so callers cannot mutate registry state through shared slices or maps.
func (r ArticleRecord) Clone() ArticleRecord {
	out := r
	out.AvailableLanguages = slices.Clone(r.AvailableLanguages)
	if r.Translations != nil {
		out.Translations = make(map[string]Translation, len(r.Translations))
		for lang, tr := range r.Translations {
			out.Translations[lang] = tr
		}
	}
	return out
}

// RecordPatch describes a shallow merge over an existing record. Nil fields are left untouched.
type RecordPatch struct {
	Category           *string
	Date               *string
	Image              *string
	AvailableLanguages []string
	Translations       map[string]Translation
}

func (r ArticleRecord) apply(patch RecordPatch) ArticleRecord {
	out := r.Clone()
	if patch.Category != nil {
		out.Category = *patch.Category
	}
	if patch.Date != nil {
		out.Date = *patch.Date
	}
	if patch.Image != nil {
		out.Image = *patch.Image
	}
	if patch.AvailableLanguages != nil {
		out.AvailableLanguages = slices.Clone(patch.AvailableLanguages)
	}
	if patch.Translations != nil {
		out.Translations = make(map[string]Translation, len(patch.Translations))
		for lang, tr := range patch.Translations {
			out.Translations[lang] = tr
		}
	}
	return out
}
