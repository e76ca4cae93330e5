package registry

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/atomicfile"
	"blogpress/app/internal/content"
)

const helperBlock = "\nconst ArticlesDB = { getAll() { return Object.values(articlesDB); } };\n"

func registrySource(codes ...string) string {
	var b strings.Builder
	b.WriteString("// Article Database\nconst articlesDB = {")
	for i, code := range codes {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`"` + code + `": {"code": "` + code + `", "category": "x", "date": "2024-01-01", "availableLanguages": ["en"], "translations": {"en": {"title": "T", "excerpt": "", "slug": "t"}}}`)
	}
	b.WriteString("};" + helperBlock)
	return b.String()
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestStore(t *testing.T, opts Options) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	if opts.Path == "" {
		opts.Path = filepath.Join(dir, "admin", "articles-db.js")
	}
	if opts.Settings.BaseLanguage == "" {
		opts.Settings = content.DefaultSettings()
	}
	if opts.Logger == nil {
		opts.Logger = silentLogger()
	}

	store, err := NewStore(opts)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store, opts.Path
}

func TestNewStoreRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(Options{Settings: content.DefaultSettings()}); err == nil {
		t.Fatalf("expected error when path is missing")
	}
}

func TestReadMissingRegistry(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, Options{})
	ctx := context.Background()

	if _, err := store.Read(ctx); !eris.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Status(ctx); !eris.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Status, got %v", err)
	}

	code, err := store.NextCode(ctx)
	if err != nil {
		t.Fatalf("NextCode returned error: %v", err)
	}
	if code != "ART001" {
		t.Fatalf("expected ART001 for missing registry, got %q", code)
	}
}

func TestWriteCreatesRegistryWithoutBackup(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t, Options{})
	ctx := context.Background()
	source := registrySource("ART001", "ART004")

	result, err := store.Write(ctx, source)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if result.Backup != "" {
		t.Fatalf("expected no backup for first write, got %q", result.Backup)
	}
	if result.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if string(got) != source {
		t.Fatalf("expected registry to contain submitted source")
	}

	status, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !status.Exists || status.Size != int64(len(source)) || status.Path != path {
		t.Fatalf("unexpected status %+v", status)
	}

	code, err := store.NextCode(ctx)
	if err != nil {
		t.Fatalf("NextCode returned error: %v", err)
	}
	if code != "ART005" {
		t.Fatalf("expected ART005, got %q", code)
	}
}

func TestWriteRejectsInvalidSourceAndKeepsRegistry(t *testing.T) {
	t.Parallel()

	store, path := newTestStore(t, Options{})
	ctx := context.Background()
	original := registrySource("ART001")
	if _, err := store.Write(ctx, original); err != nil {
		t.Fatalf("seeding Write returned error: %v", err)
	}

	cases := []string{
		"const articlesDB = {};",
		strings.Repeat("x", 80),
		"const articlesDB = {\"ART001\": {}};\n// helper block is missing from this payload",
	}
	for _, source := range cases {
		if _, err := store.Write(ctx, source); !errors.Is(err, content.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", source, err)
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if string(got) != original {
		t.Fatalf("expected registry to be unchanged after rejected writes")
	}

	backups, err := store.Backups(ctx)
	if err != nil {
		t.Fatalf("Backups returned error: %v", err)
	}
	if len(backups) != 0 {
		t.Fatalf("expected rejected writes to take no backups, got %d", len(backups))
	}
}

func TestWriteKeepsNewestBackups(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 10, 8, 0, 35, 49, 217_000_000, time.UTC)}
	store, path := newTestStore(t, Options{Now: clock.Now})
	ctx := context.Background()

	var names []string
	for i := 0; i < 9; i++ {
		result, err := store.Write(ctx, registrySource("ART001")+strings.Repeat(" ", i))
		if err != nil {
			t.Fatalf("Write %d returned error: %v", i, err)
		}
		if result.Backup != "" {
			names = append(names, result.Backup)
		}
		clock.now = clock.now.Add(time.Second)
	}

	if names[0] != "articles-db.backup.2025-10-08T00-35-50-217Z.js" {
		t.Fatalf("unexpected backup name %q", names[0])
	}

	backups, err := store.Backups(ctx)
	if err != nil {
		t.Fatalf("Backups returned error: %v", err)
	}
	if len(backups) != DefaultRetention {
		t.Fatalf("expected %d backups, got %d", DefaultRetention, len(backups))
	}
	for i, backup := range backups {
		want := names[len(names)-1-i]
		if backup.Name != want {
			t.Fatalf("backup %d: expected %q, got %q", i, want, backup.Name)
		}
		if backup.Created.IsZero() {
			t.Fatalf("expected creation time parsed from %q", backup.Name)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != DefaultRetention+1 {
		t.Fatalf("expected registry plus %d backups on disk, got %d entries", DefaultRetention, len(entries))
	}
}

func TestWriteBackupNamesStayUniqueWithinMillisecond(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
	store, _ := newTestStore(t, Options{Now: clock.Now, Retention: 10})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.Write(ctx, registrySource("ART001")); err != nil {
			t.Fatalf("Write %d returned error: %v", i, err)
		}
	}

	backups, err := store.Backups(ctx)
	if err != nil {
		t.Fatalf("Backups returned error: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 distinct backups, got %d", len(backups))
	}
	if !backups[0].Created.After(backups[1].Created) {
		t.Fatalf("expected strictly increasing backup times, got %v and %v", backups[1].Created, backups[0].Created)
	}
}

func TestWriteCrashBeforeRenameKeepsPrevious(t *testing.T) {
	t.Parallel()

	crash := errors.New("simulated crash")
	writer := &atomicfile.Writer{}
	store, path := newTestStore(t, Options{Writer: writer})
	ctx := context.Background()

	original := registrySource("ART001")
	if _, err := store.Write(ctx, original); err != nil {
		t.Fatalf("seeding Write returned error: %v", err)
	}

	writer.BeforeRename = func(tmpPath string) error {
		if strings.Contains(filepath.Base(tmpPath), "backup") {
			return nil
		}
		return crash
	}

	if _, err := store.Write(ctx, registrySource("ART001", "ART002")); !errors.Is(err, crash) {
		t.Fatalf("expected simulated crash, got %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if string(got) != original {
		t.Fatalf("expected previous registry after crash, got %q", got)
	}

	reg, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected previous registry to decode with 1 record, got %d", reg.Len())
	}
}

type recordingMirror struct {
	uploads   []string
	rotations []int
	err       error
}

var _ BackupMirror = (*recordingMirror)(nil)

func (m *recordingMirror) Upload(_ context.Context, name string, _ []byte) error {
	if m.err != nil {
		return m.err
	}
	m.uploads = append(m.uploads, name)
	return nil
}

func (m *recordingMirror) Rotate(_ context.Context, keep int) (int, error) {
	m.rotations = append(m.rotations, keep)
	return 0, nil
}

func TestWriteMirrorsBackups(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{}
	store, _ := newTestStore(t, Options{Mirror: mirror, Retention: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Write(ctx, registrySource("ART001")); err != nil {
			t.Fatalf("Write %d returned error: %v", i, err)
		}
	}

	if len(mirror.uploads) != 1 {
		t.Fatalf("expected one mirrored backup, got %v", mirror.uploads)
	}
	if len(mirror.rotations) != 1 || mirror.rotations[0] != 3 {
		t.Fatalf("expected rotation to retention 3, got %v", mirror.rotations)
	}
}

func TestWriteSucceedsWhenMirrorFails(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{err: errors.New("bucket unavailable")}
	store, _ := newTestStore(t, Options{Mirror: mirror})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Write(ctx, registrySource("ART001")); err != nil {
			t.Fatalf("Write %d returned error despite mirror failure: %v", i, err)
		}
	}
}
