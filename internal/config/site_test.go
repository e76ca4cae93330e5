package config

import (
	"os"
	"path/filepath"
	"testing"

	"blogpress/app/internal/content"
)

func writeSiteFile(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadSiteDefaults(t *testing.T) {
	t.Parallel()

	site, err := LoadSite("")
	if err != nil {
		t.Fatalf("LoadSite returned error: %v", err)
	}
	if site.IndexDocument != "index.html" {
		t.Fatalf("expected index.html, got %q", site.IndexDocument)
	}
	if site.Settings.BaseLanguage != content.DefaultBaseLanguage || len(site.Settings.Languages) != 4 {
		t.Fatalf("unexpected default settings %+v", site.Settings)
	}
}

func TestLoadSiteYAML(t *testing.T) {
	t.Parallel()

	path := writeSiteFile(t, "site.yaml", `
languages: [en, fr]
codePrefix: POST
codeWidth: 4
articlesURL: /posts/
`)

	site, err := LoadSite(path)
	if err != nil {
		t.Fatalf("LoadSite returned error: %v", err)
	}
	s := site.Settings
	if len(s.Languages) != 2 || s.Languages[1] != "fr" {
		t.Fatalf("unexpected languages %v", s.Languages)
	}
	if s.CodePrefix != "POST" || s.CodeWidth != 4 {
		t.Fatalf("unexpected code format %+v", s)
	}
	if got := s.ArticleURL("POST0001", "fr"); got != "/posts/POST0001-fr.html" {
		t.Fatalf("unexpected article url %q", got)
	}
	if s.BlogURL != content.DefaultBlogURL {
		t.Fatalf("expected default blog url, got %q", s.BlogURL)
	}
}

func TestLoadSiteTOML(t *testing.T) {
	t.Parallel()

	path := writeSiteFile(t, "site.toml", `
languages = ["de", "en"]
baseLanguage = "de"
indexDocument = "start.html"
`)

	site, err := LoadSite(path)
	if err != nil {
		t.Fatalf("LoadSite returned error: %v", err)
	}
	if site.Settings.BaseLanguage != "de" {
		t.Fatalf("expected base language de, got %q", site.Settings.BaseLanguage)
	}
	if site.IndexDocument != "start.html" {
		t.Fatalf("expected start.html, got %q", site.IndexDocument)
	}
}

func TestLoadSiteRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"base.yaml":   "languages: [tr, de]\n",
		"index.toml":  "indexDocument = \"../secret.html\"\n",
		"broken.yml":  "languages: [en\n",
		"site.json":   "{}",
		"prefix.yaml": "codePrefix: ART-\n",
	}

	for name, body := range cases {
		path := writeSiteFile(t, name, body)
		if _, err := LoadSite(path); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}
}
