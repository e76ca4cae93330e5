package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"blogpress/app/internal/content"
)

// SiteFile mirrors the optional site settings file. Unset fields keep their defaults.
type SiteFile struct {
	Languages     []string `yaml:"languages" toml:"languages"`
	BaseLanguage  string   `yaml:"baseLanguage" toml:"baseLanguage"`
	CodePrefix    string   `yaml:"codePrefix" toml:"codePrefix"`
	CodeWidth     int      `yaml:"codeWidth" toml:"codeWidth"`
	ArticlesURL   string   `yaml:"articlesURL" toml:"articlesURL"`
	BlogURL       string   `yaml:"blogURL" toml:"blogURL"`
	IndexDocument string   `yaml:"indexDocument" toml:"indexDocument"`
}

// Site holds the resolved site conventions.
type Site struct {
	Settings      content.Settings
	IndexDocument string
}

const defaultIndexDocument = "index.html"

// LoadSite reads the site settings file at path. An empty path yields the defaults. The
// format is chosen by extension: .toml for TOML, .yaml or .yml for YAML.
func LoadSite(path string) (Site, error) {
	site := Site{Settings: content.DefaultSettings(), IndexDocument: defaultIndexDocument}
	if path == "" {
		return site, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, eris.Wrapf(err, "reading site config %s", path)
	}

	var file SiteFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return Site{}, eris.Wrapf(err, "decoding TOML site config %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Site{}, eris.Wrapf(err, "decoding YAML site config %s", path)
		}
	default:
		return Site{}, eris.Errorf("unsupported site config format: %s", path)
	}

	file.applyTo(&site)
	if err := site.Settings.Validate(); err != nil {
		return Site{}, eris.Wrapf(err, "invalid site config %s", path)
	}
	if strings.ContainsAny(site.IndexDocument, `/\`) {
		return Site{}, eris.Errorf("invalid indexDocument %q in %s", site.IndexDocument, path)
	}
	return site, nil
}

func (f SiteFile) applyTo(site *Site) {
	s := &site.Settings
	if len(f.Languages) > 0 {
		s.Languages = f.Languages
	}
	if f.BaseLanguage != "" {
		s.BaseLanguage = f.BaseLanguage
	}
	if f.CodePrefix != "" {
		s.CodePrefix = f.CodePrefix
	}
	if f.CodeWidth != 0 {
		s.CodeWidth = f.CodeWidth
	}
	if f.ArticlesURL != "" {
		s.ArticlesURL = strings.TrimRight(f.ArticlesURL, "/")
	}
	if f.BlogURL != "" {
		s.BlogURL = f.BlogURL
	}
	if f.IndexDocument != "" {
		site.IndexDocument = f.IndexDocument
	}
}
