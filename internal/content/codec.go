package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinSourceLength is the shortest registry source accepted for a write.
const MinSourceLength = 50

var (
	dataMarker   = regexp.MustCompile(`(?s)const\s+articlesDB\s*=\s*\{.*?\};`)
	helperMarker = regexp.MustCompile(`(?s)const\s+ArticlesDB\s*=\s*\{.*?\};`)
	dataStart    = regexp.MustCompile(`const\s+articlesDB\s*=\s*\{`)
)

// ValidateSource applies the write-time checks to a registry source: a minimum length,
// both declaration markers, and a data map that decodes into well formed records.
func ValidateSource(source string, settings Settings) error {
	if utf8.RuneCountInString(source) < MinSourceLength {
		return invalid("Invalid payload: missing or too short content")
	}
	if !dataMarker.MatchString(source) {
		return invalid("Validation failed: content does not contain a valid articlesDB object")
	}
	if !helperMarker.MatchString(source) {
		return invalid("Validation failed: content does not contain a valid ArticlesDB helper")
	}
	if _, err := Decode([]byte(source), settings); err != nil {
		return err
	}
	return nil
}

// Decode extracts the articlesDB object literal from a registry source and loads it into
// a new Registry. Translations outside availableLanguages are tolerated here.
func Decode(source []byte, settings Settings) (*Registry, error) {
	literal, err := extractDataLiteral(source)
	if err != nil {
		return nil, err
	}

	var records map[string]ArticleRecord
	if err := json.Unmarshal(literal, &records); err != nil {
		return nil, invalid("Validation failed: articlesDB object is not valid JSON: %v", err)
	}

	reg := NewRegistry(settings)
	if err := reg.merge(records, false); err != nil {
		return nil, err
	}
	return reg, nil
}

func extractDataLiteral(source []byte) ([]byte, error) {
	loc := dataStart.FindIndex(source)
	if loc == nil {
		return nil, invalid("Validation failed: content does not contain a valid articlesDB object")
	}
	start := loc[1] - 1

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(source); i++ {
		c := source[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return source[start : i+1], nil
			}
		}
	}
	return nil, invalid("Validation failed: articlesDB object is not terminated")
}

// Encode renders the registry as a complete source file: the data map followed by the
// ArticlesDB helper block the public pages load.
func Encode(reg *Registry) ([]byte, error) {
	data, err := reg.ExportJSON()
	if err != nil {
		return nil, err
	}
	s := reg.Settings()

	var buf bytes.Buffer
	buf.WriteString("// Article Database\n")
	buf.WriteString("// This file contains all blog articles metadata and content registry\n\n")
	buf.WriteString("const articlesDB = ")
	buf.Write(data)
	buf.WriteString(";\n\n")

	helpers := strings.NewReplacer(
		"{{base}}", s.BaseLanguage,
		"{{prefix}}", s.CodePrefix,
		"{{width}}", fmt.Sprint(s.CodeWidth),
		"{{articles}}", s.ArticlesURL,
		"{{blog}}", s.BlogURL,
	).Replace(helperTemplate)
	buf.WriteString(helpers)

	return buf.Bytes(), nil
}

const helperTemplate = "// Helper functions\n" +
	"const ArticlesDB = {\n" +
	"    getAll() { return Object.values(articlesDB); },\n" +
	"    getByCode(code) { return articlesDB[code]; },\n" +
	"    getByCategory(category) { return Object.values(articlesDB).filter(a => a.category === category); },\n" +
	"    getByCategoryAndLanguage(category, lang) { return Object.values(articlesDB).filter(a => a.category === category && a.availableLanguages && a.availableLanguages.includes(lang)); },\n" +
	"    add(article) { articlesDB[article.code] = article; return article; },\n" +
	"    update(code, updates) { if (articlesDB[code]) { articlesDB[code] = { ...articlesDB[code], ...updates }; return articlesDB[code]; } return null; },\n" +
	"    delete(code) { delete articlesDB[code]; },\n" +
	"    getNextCode() { const codes = Object.keys(articlesDB).filter(code => /^{{prefix}}\\d+$/.test(code)).map(code => parseInt(code.slice('{{prefix}}'.length), 10)); const maxNum = Math.max(...codes, 0); return `{{prefix}}${String(maxNum + 1).padStart({{width}}, '0')}`; },\n" +
	"    exportJSON() { return JSON.stringify(articlesDB, null, 2); },\n" +
	"    importJSON(json) { try { const data = JSON.parse(json); Object.assign(articlesDB, data); return true; } catch (e) { console.error('Failed to import:', e); return false; } },\n" +
	"    getArticleURL(code, lang = '{{base}}') { const article = articlesDB[code]; if (!article) return null; return `{{articles}}/${code}-${lang}.html`; },\n" +
	"    getBlogURL(lang = '{{base}}') { return `{{blog}}`; },\n" +
	"    isAvailableInLanguage(code, lang) { const article = articlesDB[code]; return article && article.availableLanguages && article.availableLanguages.includes(lang); },\n" +
	"    getAvailableLanguages(code) { const article = articlesDB[code]; return article && article.availableLanguages ? article.availableLanguages : ['{{base}}']; }\n" +
	"};\n\n" +
	"if (typeof window !== 'undefined') {\n" +
	"    window.articlesDB = articlesDB;\n" +
	"    window.ArticlesDB = ArticlesDB;\n" +
	"}\n\n" +
	"if (typeof module !== 'undefined' && module.exports) {\n" +
	"    module.exports = { articlesDB, ArticlesDB };\n" +
	"}\n"
