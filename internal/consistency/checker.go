// Package consistency reconciles the registry with the article files on disk. Writes to the
// two stores are independent, so drift is detected here rather than prevented.
package consistency

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"blogpress/app/internal/articles"
	"blogpress/app/internal/content"
	"blogpress/app/internal/metrics"
)

// Issue kinds.
const (
	KindMissingFile          = "missing_file"
	KindOrphanFile           = "orphan_file"
	KindUntrackedTranslation = "untracked_translation"
	KindInvalidDocument      = "invalid_document"
	KindLangMismatch         = "lang_mismatch"
	KindCodeMismatch         = "code_mismatch"
	KindTitleMismatch        = "title_mismatch"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// RegistryLoader loads the current registry.
type RegistryLoader interface {
	Load(ctx context.Context) (*content.Registry, error)
}

// ArticleReader enumerates and reads article documents.
type ArticleReader interface {
	List(ctx context.Context) ([]articles.FileRef, error)
	Read(ctx context.Context, code, lang string) ([]byte, error)
}

// Issue is one discrepancy between the registry and the article files.
type Issue struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Lang     string `json:"lang,omitempty"`
	Message  string `json:"message"`
}

// Report is the outcome of one check.
type Report struct {
	CheckedAt  time.Time `json:"checkedAt"`
	Articles   int       `json:"articles"`
	Files      int       `json:"files"`
	Issues     []Issue   `json:"issues"`
	Consistent bool      `json:"consistent"`
}

// Counts returns the number of issues per kind.
func (r Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, issue := range r.Issues {
		counts[issue.Kind]++
	}
	return counts
}

// Options configures a Checker.
type Options struct {
	Registry RegistryLoader
	Articles ArticleReader
	Logger   *logrus.Logger
	Metrics  *metrics.Collectors
	Now      func() time.Time
}

// Checker compares registry records with article files.
type Checker struct {
	registry RegistryLoader
	articles ArticleReader
	logger   *logrus.Logger
	metrics  *metrics.Collectors
	now      func() time.Time

	mu   sync.RWMutex
	last *Report
}

// NewChecker validates the options and returns a Checker.
func NewChecker(opts Options) (*Checker, error) {
	if opts.Registry == nil {
		return nil, eris.New("registry loader is required")
	}
	if opts.Articles == nil {
		return nil, eris.New("article reader is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Checker{
		registry: opts.Registry,
		articles: opts.Articles,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

// Last returns the most recent report, if any check has completed.
func (c *Checker) Last() (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// Check runs a full reconciliation.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	reg, err := c.registry.Load(ctx)
	if err != nil {
		c.logError(err, "loading registry for consistency check")
		return Report{}, eris.Wrap(err, "loading registry")
	}
	refs, err := c.articles.List(ctx)
	if err != nil {
		c.logError(err, "listing article files for consistency check")
		return Report{}, eris.Wrap(err, "listing article files")
	}

	files := make(map[string]map[string]bool)
	for _, ref := range refs {
		if files[ref.Code] == nil {
			files[ref.Code] = make(map[string]bool)
		}
		files[ref.Code][ref.Lang] = true
	}

	report := Report{
		CheckedAt: c.now().UTC(),
		Articles:  reg.Len(),
		Files:     len(refs),
		Issues:    []Issue{},
	}

	for _, rec := range reg.All() {
		for _, lang := range rec.AvailableLanguages {
			if !files[rec.Code][lang] {
				report.add(KindMissingFile, SeverityError, rec.Code, lang,
					"registry lists %s but %s does not exist", lang, content.ArticleFileName(rec.Code, lang))
				continue
			}

			doc, err := c.articles.Read(ctx, rec.Code, lang)
			if err != nil {
				return Report{}, eris.Wrapf(err, "reading %s", content.ArticleFileName(rec.Code, lang))
			}
			report.inspect(rec, lang, doc)
		}

		for lang := range rec.Translations {
			if !rec.HasLanguage(lang) {
				report.add(KindUntrackedTranslation, SeverityWarning, rec.Code, lang,
					"translation %s is not listed in availableLanguages", lang)
			}
		}
	}

	for _, ref := range refs {
		rec, ok := reg.Get(ref.Code)
		switch {
		case !ok:
			report.add(KindOrphanFile, SeverityWarning, ref.Code, ref.Lang,
				"%s has no registry entry", content.ArticleFileName(ref.Code, ref.Lang))
		case !rec.HasLanguage(ref.Lang):
			report.add(KindOrphanFile, SeverityWarning, ref.Code, ref.Lang,
				"%s exists but %s is not an available language", content.ArticleFileName(ref.Code, ref.Lang), ref.Lang)
		}
	}

	sort.SliceStable(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Lang != b.Lang {
			return a.Lang < b.Lang
		}
		return a.Kind < b.Kind
	})

	report.Consistent = true
	for _, issue := range report.Issues {
		if issue.Severity == SeverityError {
			report.Consistent = false
			break
		}
	}

	c.metrics.SetConsistencyIssues(report.Counts())
	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"component":  "consistency",
			"articles":   report.Articles,
			"files":      report.Files,
			"issues":     len(report.Issues),
			"consistent": report.Consistent,
		}).Info("consistency check finished")
	}

	return report, nil
}

// inspect verifies an article document against its registry record.
func (r *Report) inspect(rec content.ArticleRecord, lang string, data []byte) {
	node, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		r.add(KindInvalidDocument, SeverityError, rec.Code, lang, "document does not parse: %v", err)
		return
	}
	doc := goquery.NewDocumentFromNode(node)

	if declared, ok := doc.Find("html").First().Attr("lang"); ok && declared != lang {
		r.add(KindLangMismatch, SeverityError, rec.Code, lang, "document declares lang %q", declared)
	}
	if declared, ok := doc.Find("body").First().Attr("data-article-code"); ok && declared != rec.Code {
		r.add(KindCodeMismatch, SeverityError, rec.Code, lang, "document declares article code %q", declared)
	}

	body := doc.Find(".article-content").First()
	if body.Length() == 0 {
		r.add(KindInvalidDocument, SeverityError, rec.Code, lang, "document has no .article-content element")
		return
	}

	tr, ok := rec.Translations[lang]
	if !ok {
		return
	}
	heading := strings.Join(strings.Fields(body.Find("h1").First().Text()), " ")
	if heading != strings.Join(strings.Fields(tr.Title), " ") {
		r.add(KindTitleMismatch, SeverityWarning, rec.Code, lang, "heading %q differs from registry title %q", heading, tr.Title)
	}
}

func (r *Report) add(kind, severity, code, lang, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Kind:     kind,
		Severity: severity,
		Code:     code,
		Lang:     lang,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (c *Checker) logError(err error, message string) {
	if c.logger == nil {
		return
	}
	c.logger.WithField("error", err.Error()).WithField("component", "consistency").Error(message)
}
