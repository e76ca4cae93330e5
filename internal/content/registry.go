package content

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Registry is the in-memory map from article code to record, with the accessor API the
// editor relies on. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	settings Settings
	records  map[string]ArticleRecord
}

// NewRegistry returns an empty registry bound to the given settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		records:  make(map[string]ArticleRecord),
	}
}

// Settings returns the site conventions the registry was created with.
func (r *Registry) Settings() Settings {
	return r.settings
}

// Len returns the number of registered articles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Codes returns every registered code in ascending order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.records))
	for code := range r.records {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// All returns every record ordered by code.
func (r *Registry) All() []ArticleRecord {
	return r.filter(func(ArticleRecord) bool { return true })
}

// Get returns the record for code.
func (r *Registry) Get(code string) (ArticleRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[code]
	if !ok {
		return ArticleRecord{}, false
	}
	return rec.Clone(), true
}

// ByCategory returns the records tagged with category.
func (r *Registry) ByCategory(category string) []ArticleRecord {
	return r.filter(func(rec ArticleRecord) bool { return rec.Category == category })
}

// ByCategoryAndLanguage returns the records tagged with category that are available in lang.
func (r *Registry) ByCategoryAndLanguage(category, lang string) []ArticleRecord {
	return r.filter(func(rec ArticleRecord) bool {
		return rec.Category == category && rec.HasLanguage(lang)
	})
}

// ByLanguage returns the records available in lang.
func (r *Registry) ByLanguage(lang string) []ArticleRecord {
	return r.filter(func(rec ArticleRecord) bool { return rec.HasLanguage(lang) })
}

func (r *Registry) filter(keep func(ArticleRecord) bool) []ArticleRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ArticleRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Add registers a new record. Codes are immutable once created, so an existing code is rejected.
func (r *Registry) Add(rec ArticleRecord) (ArticleRecord, error) {
	if err := r.settings.ValidateRecord(rec); err != nil {
		return ArticleRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.Code]; exists {
		return ArticleRecord{}, eris.Wrapf(ErrExists, "adding %s", rec.Code)
	}
	stored := rec.Clone()
	r.records[rec.Code] = stored
	return stored.Clone(), nil
}

// Update shallow-merges patch into the record for code and re-validates the result.
func (r *Registry) Update(code string, patch RecordPatch) (ArticleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[code]
	if !ok {
		return ArticleRecord{}, eris.Wrapf(ErrNotFound, "updating %s", code)
	}

	merged := current.apply(patch)
	if err := r.settings.ValidateRecord(merged); err != nil {
		return ArticleRecord{}, err
	}
	r.records[code] = merged
	return merged.Clone(), nil
}

// Delete removes the record for code and reports whether it existed.
func (r *Registry) Delete(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[code]; !ok {
		return false
	}
	delete(r.records, code)
	return true
}

// SetLanguage makes lang available for code with the given translation, keeping
// availableLanguages and translations in lockstep.
func (r *Registry) SetLanguage(code, lang string, tr Translation) (ArticleRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[code]
	if !ok {
		return ArticleRecord{}, eris.Wrapf(ErrNotFound, "setting language %s on %s", lang, code)
	}

	next := current.Clone()
	if !next.HasLanguage(lang) {
		next.AvailableLanguages = append(next.AvailableLanguages, lang)
	}
	if next.Translations == nil {
		next.Translations = make(map[string]Translation)
	}
	next.Translations[lang] = tr

	if err := r.settings.ValidateRecord(next); err != nil {
		return ArticleRecord{}, err
	}
	r.records[code] = next
	return next.Clone(), nil
}

// RemoveLanguage drops lang from both availableLanguages and translations. The base
// language can never be removed.
func (r *Registry) RemoveLanguage(code, lang string) (ArticleRecord, error) {
	if lang == r.settings.BaseLanguage {
		return ArticleRecord{}, invalid("base language %q cannot be removed", lang)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[code]
	if !ok {
		return ArticleRecord{}, eris.Wrapf(ErrNotFound, "removing language %s from %s", lang, code)
	}

	next := current.Clone()
	next.AvailableLanguages = slices.DeleteFunc(next.AvailableLanguages, func(l string) bool { return l == lang })
	delete(next.Translations, lang)

	r.records[code] = next
	return next.Clone(), nil
}

// NextCode returns the code following the highest numbered one in the registry.
func (r *Registry) NextCode() string {
	return NextCode(r.Codes(), r.settings.CodePrefix, r.settings.CodeWidth)
}

// NextCode scans codes for prefix followed by digits, takes the maximum and returns the
// successor zero-padded to width. Codes that do not follow the pattern are ignored, and an
// empty set starts at 1. The result does not depend on the order of codes.
func NextCode(codes []string, prefix string, width int) string {
	maxNum := 0
	for _, code := range codes {
		n, ok := parseCodeNumber(code, prefix)
		if ok && n > maxNum {
			maxNum = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, maxNum+1)
}

func parseCodeNumber(code, prefix string) (int, bool) {
	suffix, ok := strings.CutPrefix(code, prefix)
	if !ok || suffix == "" {
		return 0, false
	}
	for i := 0; i < len(suffix); i++ {
		if suffix[i] < '0' || suffix[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ArticleURL returns the public document URL for code in lang, or false when the code is unknown.
func (r *Registry) ArticleURL(code, lang string) (string, bool) {
	if _, ok := r.Get(code); !ok {
		return "", false
	}
	if lang == "" {
		lang = r.settings.BaseLanguage
	}
	return r.settings.ArticleURL(code, lang), true
}

// BlogURL returns the listing page URL. All languages share one listing page.
func (r *Registry) BlogURL(string) string {
	return r.settings.BlogURL
}

// IsAvailableInLanguage reports whether code exists and lists lang as available.
func (r *Registry) IsAvailableInLanguage(code, lang string) bool {
	rec, ok := r.Get(code)
	return ok && rec.HasLanguage(lang)
}

// AvailableLanguages returns the languages of code, or just the base language when unknown.
func (r *Registry) AvailableLanguages(code string) []string {
	rec, ok := r.Get(code)
	if !ok || len(rec.AvailableLanguages) == 0 {
		return []string{r.settings.BaseLanguage}
	}
	return rec.AvailableLanguages
}

// ExportJSON serialises the registry map with two-space indentation and sorted keys.
func (r *Registry) ExportJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "encoding registry")
	}
	return data, nil
}

// ImportJSON merges a serialised registry map into r, replacing records with the same
// code. Every incoming record is validated before any of them is applied.
func (r *Registry) ImportJSON(data []byte) error {
	var incoming map[string]ArticleRecord
	if err := json.Unmarshal(data, &incoming); err != nil {
		return invalid("registry JSON does not decode: %v", err)
	}
	return r.merge(incoming, true)
}

func (r *Registry) merge(incoming map[string]ArticleRecord, strict bool) error {
	for key, rec := range incoming {
		if key != rec.Code {
			return invalid("registry key %q does not match article code %q", key, rec.Code)
		}
		if err := r.settings.validateRecord(rec, strict); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range incoming {
		r.records[key] = rec.Clone()
	}
	return nil
}
