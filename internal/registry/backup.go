package registry

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/atomicfile"
)

const (
	backupInfix = ".backup."
	// backupLayout renders a UTC ISO 8601 instant with millisecond precision. Separators
	// that are awkward in file names are replaced afterwards.
	backupLayout = "2006-01-02T15:04:05.000Z"
)

// Backup describes one local registry backup.
type Backup struct {
	Name    string
	Path    string
	Size    int64
	Created time.Time
}

// Backups lists the local backups, newest first.
func (s *Store) Backups(ctx context.Context) ([]Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := s.backupNames()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.path)
	backups := make([]Backup, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, eris.Wrapf(err, "stat backup %s", name)
		}
		created, _ := s.backupTime(name)
		backups = append(backups, Backup{
			Name:    name,
			Path:    path,
			Size:    info.Size(),
			Created: created,
		})
	}
	return backups, nil
}

// backup copies the current registry aside. It returns nil when there is nothing to back up.
func (s *Store) backup() (*Backup, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "stat registry %s", s.path)
	}

	stamp := s.nextBackupTime()
	name := s.backupName(stamp)
	path := filepath.Join(filepath.Dir(s.path), name)
	for fileExists(path) {
		stamp = stamp.Add(time.Millisecond)
		name = s.backupName(stamp)
		path = filepath.Join(filepath.Dir(s.path), name)
	}
	s.lastBackup = stamp

	if err := s.writer.CopyFile(s.path, path); err != nil {
		s.logError(logrus.Fields{"backup": name}, err, "backing up registry")
		s.metrics.RecordBackup("local", "error")
		return nil, eris.Wrap(err, "backing up registry")
	}
	s.metrics.RecordBackup("local", "success")

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"component": "registry",
			"backup":    name,
		}).Info("registry backed up")
	}

	s.prune()

	return &Backup{Name: name, Path: path, Size: info.Size(), Created: stamp}, nil
}

// prune removes local backups beyond the retention count. Failures are logged only.
func (s *Store) prune() {
	names, err := s.backupNames()
	if err != nil {
		s.logError(nil, err, "listing backups for pruning")
		return
	}
	if len(names) <= s.retention {
		return
	}

	removed := 0
	dir := filepath.Dir(s.path)
	for _, name := range names[s.retention:] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			s.logError(logrus.Fields{"backup": name}, err, "removing old backup")
			continue
		}
		removed++
	}
	s.metrics.RecordPruned("local", removed)
}

// backupNames returns the backup file names sorted newest first. The timestamp format
// sorts lexicographically.
func (s *Store) backupNames() ([]string, error) {
	entries, err := os.ReadDir(filepath.Dir(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "listing backups")
	}

	prefix, ext := s.backupAffixes()
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || atomicfile.IsTemp(name) {
			continue
		}
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (s *Store) backupAffixes() (prefix, ext string) {
	base := filepath.Base(s.path)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + backupInfix, ext
}

func (s *Store) backupName(t time.Time) string {
	prefix, ext := s.backupAffixes()
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(backupLayout))
	return prefix + stamp + ext
}

func (s *Store) backupTime(name string) (time.Time, bool) {
	prefix, ext := s.backupAffixes()
	stamp := []byte(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext))
	if len(stamp) != len(backupLayout) {
		return time.Time{}, false
	}
	stamp[13], stamp[16], stamp[19] = ':', ':', '.'
	t, err := time.Parse(backupLayout, string(stamp))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// nextBackupTime returns the current time, moved forward when needed so backup names
// stay strictly increasing within the process.
func (s *Store) nextBackupTime() time.Time {
	stamp := s.now().UTC().Truncate(time.Millisecond)
	if !stamp.After(s.lastBackup) {
		stamp = s.lastBackup.Add(time.Millisecond)
	}
	return stamp
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
