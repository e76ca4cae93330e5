package content

import (
	"fmt"
	"slices"

	"github.com/rotisserie/eris"
)

const (
	DefaultBaseLanguage = "en"
	DefaultCodePrefix   = "ART"
	DefaultCodeWidth    = 3
	DefaultArticlesURL  = "/blog/articles"
	DefaultBlogURL      = "/blog.html"
)

// DefaultLanguages lists the languages the blog is published in, base language first.
var DefaultLanguages = []string{"en", "tr", "az", "de"}

// Settings describes the site conventions the registry is bound to.
type Settings struct {
	Languages    []string
	BaseLanguage string
	CodePrefix   string
	CodeWidth    int
	ArticlesURL  string
	BlogURL      string
}

// DefaultSettings returns the conventions of the stock blog layout.
func DefaultSettings() Settings {
	return Settings{
		Languages:    slices.Clone(DefaultLanguages),
		BaseLanguage: DefaultBaseLanguage,
		CodePrefix:   DefaultCodePrefix,
		CodeWidth:    DefaultCodeWidth,
		ArticlesURL:  DefaultArticlesURL,
		BlogURL:      DefaultBlogURL,
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if len(s.Languages) == 0 {
		return eris.New("at least one language is required")
	}
	if s.BaseLanguage == "" {
		return eris.New("base language is required")
	}
	if !slices.Contains(s.Languages, s.BaseLanguage) {
		return eris.Errorf("base language %q is not listed in languages", s.BaseLanguage)
	}
	for _, lang := range s.Languages {
		if !IsToken(lang) {
			return eris.Errorf("invalid language code %q", lang)
		}
	}
	if s.CodePrefix == "" || !IsToken(s.CodePrefix) {
		return eris.Errorf("invalid code prefix %q", s.CodePrefix)
	}
	if s.CodeWidth <= 0 {
		return eris.New("code width must be greater than zero")
	}
	return nil
}

// ArticleURL returns the public URL of the article file for the given code and language.
func (s Settings) ArticleURL(code, lang string) string {
	return fmt.Sprintf("%s/%s", s.ArticlesURL, ArticleFileName(code, lang))
}

// ArticleFileName returns the durable file name of an article document.
func ArticleFileName(code, lang string) string {
	return code + "-" + lang + ".html"
}

// IsToken reports whether s is a non-empty run of ASCII letters, digits and underscores.
// Codes and language codes are restricted to tokens so they can never form a path.
func IsToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}
