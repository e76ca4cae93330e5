// Package articles stores the per-language HTML documents of blog articles as
// {code}-{lang}.html files in a single directory.
package articles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/atomicfile"
	"blogpress/app/internal/content"
	"blogpress/app/internal/metrics"
)

// MinHTMLLength is the shortest document accepted for a language.
const MinHTMLLength = 50

// ErrInvalidPayload is matched by every rejected save or delete request.
var ErrInvalidPayload = content.ErrValidation

// PartialWriteError reports a save that failed after zero or more languages were written.
type PartialWriteError struct {
	Code    string
	Lang    string
	Written []string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("writing %s for %s: %v", e.Lang, e.Code, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// FileRef identifies one article document on disk.
type FileRef struct {
	Code string
	Lang string
	Path string
	URL  string
}

// Options configures a Store.
type Options struct {
	Dir      string
	Settings content.Settings
	Logger   *logrus.Logger
	Metrics  *metrics.Collectors
	// Writer performs the atomic replacement. Defaults to a zero atomicfile.Writer.
	Writer *atomicfile.Writer
}

// Store reads and writes article documents.
type Store struct {
	dir      string
	settings content.Settings
	logger   *logrus.Logger
	metrics  *metrics.Collectors
	writer   *atomicfile.Writer

	mu sync.Mutex
}

// NewStore validates the options and returns a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, eris.New("articles directory is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid site settings")
	}

	writer := opts.Writer
	if writer == nil {
		writer = &atomicfile.Writer{}
	}

	return &Store{
		dir:      filepath.Clean(opts.Dir),
		settings: opts.Settings,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		writer:   writer,
	}, nil
}

// Dir returns the articles directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path of the document for code in lang.
func (s *Store) Path(code, lang string) string {
	return filepath.Join(s.dir, content.ArticleFileName(code, lang))
}

// URL returns the public URL of the document for code in lang.
func (s *Store) URL(code, lang string) string {
	return s.settings.ArticleURL(code, lang)
}

// Save writes one document per language. The whole request is validated before the first
// write; languages are then written in sorted order, each atomically. When a write fails
// the returned *PartialWriteError lists the URLs already written.
func (s *Store) Save(ctx context.Context, code string, files map[string]string) ([]string, error) {
	if err := validateCode(code); err != nil {
		s.metrics.RecordRejection("save-article")
		return nil, err
	}
	if files == nil {
		s.metrics.RecordRejection("save-article")
		return nil, content.NewValidationError("Invalid payload: requires code and files map")
	}
	if len(files) == 0 {
		return []string{}, nil
	}

	langs := make([]string, 0, len(files))
	for lang, html := range files {
		if !content.IsToken(lang) {
			s.metrics.RecordRejection("save-article")
			return nil, content.NewValidationError("Invalid language code %q", lang)
		}
		if utf8.RuneCountInString(html) < MinHTMLLength {
			s.metrics.RecordRejection("save-article")
			return nil, content.NewValidationError("Invalid HTML for %s", lang)
		}
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]string, 0, len(langs))
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logError(logrus.Fields{"code": code}, err, "creating articles directory")
		return written, &PartialWriteError{Code: code, Lang: langs[0], Written: written, Err: err}
	}

	for _, lang := range langs {
		if err := ctx.Err(); err != nil {
			return written, &PartialWriteError{Code: code, Lang: lang, Written: written, Err: err}
		}

		path := s.Path(code, lang)
		if err := s.writer.WriteFile(path, []byte(files[lang])); err != nil {
			s.logError(logrus.Fields{"code": code, "lang": lang, "path": path}, err, "writing article file")
			s.metrics.RecordArticleFile("save", "error")
			return written, &PartialWriteError{Code: code, Lang: lang, Written: written, Err: err}
		}
		s.metrics.RecordArticleFile("save", "success")
		written = append(written, s.URL(code, lang))
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"component": "articles",
			"code":      code,
			"written":   strings.Join(written, ", "),
		}).Info("article saved")
	}

	return written, nil
}

// Delete removes the documents of code for languages, or for every configured language
// when languages is empty. Missing files are skipped, so repeated deletes succeed.
func (s *Store) Delete(ctx context.Context, code string, languages []string) ([]string, error) {
	if err := validateCode(code); err != nil {
		s.metrics.RecordRejection("delete-article")
		return nil, err
	}
	if len(languages) == 0 {
		languages = s.settings.Languages
	}
	for _, lang := range languages {
		if !content.IsToken(lang) {
			s.metrics.RecordRejection("delete-article")
			return nil, content.NewValidationError("Invalid language code %q", lang)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := []string{}
	for _, lang := range languages {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		path := s.Path(code, lang)
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.logError(logrus.Fields{"code": code, "lang": lang, "path": path}, err, "deleting article file")
			s.metrics.RecordArticleFile("delete", "error")
			return deleted, eris.Wrapf(err, "deleting %s", content.ArticleFileName(code, lang))
		}
		s.metrics.RecordArticleFile("delete", "success")
		deleted = append(deleted, s.URL(code, lang))
	}

	if s.logger != nil {
		entry := s.logger.WithFields(logrus.Fields{"component": "articles", "code": code})
		if len(deleted) == 0 {
			entry.Info("article delete found no files")
		} else {
			entry.WithField("deleted", strings.Join(deleted, ", ")).Info("article deleted")
		}
	}

	return deleted, nil
}

// Exists reports whether the document for code in lang is a regular file.
func (s *Store) Exists(ctx context.Context, code, lang string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !content.IsToken(code) || !content.IsToken(lang) {
		return false, nil
	}

	info, err := os.Stat(s.Path(code, lang))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "stat %s", content.ArticleFileName(code, lang))
	}
	return info.Mode().IsRegular(), nil
}

// Read returns the document for code in lang.
func (s *Store) Read(ctx context.Context, code, lang string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !content.IsToken(code) || !content.IsToken(lang) {
		return nil, content.NewValidationError("Invalid article reference %q/%q", code, lang)
	}

	data, err := os.ReadFile(s.Path(code, lang))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(content.ErrNotFound, "%s", content.ArticleFileName(code, lang))
		}
		return nil, eris.Wrapf(err, "reading %s", content.ArticleFileName(code, lang))
	}
	return data, nil
}

// List enumerates the article documents, ordered by code then language. Files that do not
// follow the {code}-{lang}.html convention are ignored.
func (s *Store) List(ctx context.Context) ([]FileRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "listing articles directory")
	}

	var refs []FileRef
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || atomicfile.IsTemp(name) {
			continue
		}
		code, lang, ok := ParseFileName(name)
		if !ok {
			continue
		}
		refs = append(refs, FileRef{
			Code: code,
			Lang: lang,
			Path: filepath.Join(s.dir, name),
			URL:  s.URL(code, lang),
		})
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Code != refs[j].Code {
			return refs[i].Code < refs[j].Code
		}
		return refs[i].Lang < refs[j].Lang
	})
	return refs, nil
}

// ParseFileName splits a {code}-{lang}.html name. Both parts must be tokens.
func ParseFileName(name string) (code, lang string, ok bool) {
	stem, found := strings.CutSuffix(name, ".html")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 || i == len(stem)-1 {
		return "", "", false
	}
	code, lang = stem[:i], stem[i+1:]
	if !content.IsToken(code) || !content.IsToken(lang) {
		return "", "", false
	}
	return code, lang, true
}

func validateCode(code string) error {
	if code == "" {
		return content.NewValidationError("Invalid payload: requires code")
	}
	if !content.IsToken(code) {
		return content.NewValidationError("Invalid article code %q", code)
	}
	return nil
}

func (s *Store) logError(fields logrus.Fields, err error, message string) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithField("error", err.Error()).WithField("component", "articles")
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
