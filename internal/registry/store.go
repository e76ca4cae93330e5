package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/atomicfile"
	"blogpress/app/internal/content"
	"blogpress/app/internal/metrics"
)

// DefaultRetention is the number of local backups kept after each write.
const DefaultRetention = 5

// ErrNotFound indicates the registry file does not exist yet.
var ErrNotFound = eris.New("registry file not found")

// Options configures a Store.
type Options struct {
	Path      string
	Retention int
	Settings  content.Settings
	Logger    *logrus.Logger
	Metrics   *metrics.Collectors
	// Mirror receives a copy of every backup. Optional.
	Mirror BackupMirror
	// Writer performs the atomic replacement. Defaults to a zero atomicfile.Writer.
	Writer *atomicfile.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store persists the registry source file and its rolling backups.
type Store struct {
	path      string
	retention int
	settings  content.Settings
	logger    *logrus.Logger
	metrics   *metrics.Collectors
	mirror    BackupMirror
	writer    *atomicfile.Writer
	now       func() time.Time

	mu         sync.Mutex
	lastBackup time.Time
}

// WriteResult describes a completed registry write.
type WriteResult struct {
	Timestamp time.Time
	// Backup is the file name of the backup taken before the write, empty when the
	// registry did not exist yet.
	Backup string
}

// Status describes the registry file on disk.
type Status struct {
	Exists   bool
	Size     int64
	Modified time.Time
	Path     string
}

// NewStore validates the options and returns a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, eris.New("registry path is required")
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid site settings")
	}

	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	writer := opts.Writer
	if writer == nil {
		writer = &atomicfile.Writer{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		path:      filepath.Clean(opts.Path),
		retention: retention,
		settings:  opts.Settings,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		mirror:    opts.Mirror,
		writer:    writer,
		now:       now,
	}, nil
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the raw registry source.
func (s *Store) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		s.logError(nil, err, "reading registry")
		return nil, eris.Wrapf(err, "reading registry %s", s.path)
	}
	return data, nil
}

// Load decodes the registry on disk. A missing file yields an empty registry.
func (s *Store) Load(ctx context.Context) (*content.Registry, error) {
	data, err := s.Read(ctx)
	if err != nil {
		if eris.Is(err, ErrNotFound) {
			return content.NewRegistry(s.settings), nil
		}
		return nil, err
	}

	reg, err := content.Decode(data, s.settings)
	if err != nil {
		return nil, eris.Wrapf(err, "decoding registry %s", s.path)
	}
	return reg, nil
}

// NextCode returns the code the next article should use.
func (s *Store) NextCode(ctx context.Context) (string, error) {
	reg, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return reg.NextCode(), nil
}

// Status reports size and modification time of the registry file.
func (s *Store) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Status{Path: s.path}, ErrNotFound
		}
		return Status{Path: s.path}, eris.Wrapf(err, "stat registry %s", s.path)
	}
	if info.IsDir() {
		return Status{Path: s.path}, ErrNotFound
	}

	return Status{
		Exists:   true,
		Size:     info.Size(),
		Modified: info.ModTime(),
		Path:     s.path,
	}, nil
}

// Write validates source, backs up the current registry, prunes old backups and
// atomically replaces the registry. A rejected or failed write leaves the registry as it was.
func (s *Store) Write(ctx context.Context, source string) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}

	if err := content.ValidateSource(source, s.settings); err != nil {
		s.metrics.RecordRejection("save-database")
		s.metrics.RecordRegistryWrite("rejected")
		return WriteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.metrics.RecordRegistryWrite("error")
		return WriteResult{}, eris.Wrapf(err, "creating registry directory for %s", s.path)
	}

	backup, err := s.backup()
	if err != nil {
		s.metrics.RecordRegistryWrite("error")
		return WriteResult{}, err
	}

	if err := s.writer.WriteFile(s.path, []byte(source)); err != nil {
		s.logError(logrus.Fields{"path": s.path}, err, "writing registry")
		s.metrics.RecordRegistryWrite("error")
		return WriteResult{}, eris.Wrap(err, "writing registry")
	}
	s.metrics.RecordRegistryWrite("success")

	result := WriteResult{Timestamp: s.now().UTC()}
	if backup != nil {
		result.Backup = backup.Name
		s.mirrorBackup(ctx, *backup)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"component": "registry",
			"path":      s.path,
			"backup":    result.Backup,
			"bytes":     len(source),
		}).Info("registry updated")
	}

	return result, nil
}

func (s *Store) logError(fields logrus.Fields, err error, message string) {
	if s.logger == nil {
		return
	}

	entry := s.logger.WithField("error", err.Error()).WithField("component", "registry")
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
