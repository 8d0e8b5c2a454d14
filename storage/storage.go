package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultBackupsKept is the number of previous chain files kept next to the live one.
const DefaultBackupsKept = 5

const backupTimeLayout = "20060102150405.000000000"

type backupRotator struct {
	dir  string
	keep int
	log  *zap.Logger
}

// chainFile pairs a backup path with the time encoded in its name.
type chainFile struct {
	path      string
	timestamp time.Time
}

type chainFiles []chainFile

func (f chainFiles) Len() int           { return len(f) }
func (f chainFiles) Less(i, j int) bool { return f[i].timestamp.Before(f[j].timestamp) }
func (f chainFiles) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func newBackupRotator(dir string, keep int) *backupRotator {
	return &backupRotator{dir: dir, keep: keep, log: zap.NewNop()}
}

// snapshot copies the current chain file into the backup directory and drops the
// oldest copies beyond keep. A missing source file is not an error.
func (r *backupRotator) snapshot(path string) error {
	if r.keep <= 0 {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to open chain file")
	}
	defer src.Close()

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create backup directory")
	}

	name := fmt.Sprintf("chain_%s.json", time.Now().UTC().Format(backupTimeLayout))
	dst, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return errors.Wrap(err, "failed to create backup file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrap(err, "failed to copy chain file")
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "failed to close backup file")
	}

	return r.cleanupOldFiles()
}

func (r *backupRotator) files() (chainFiles, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, "chain_*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list backups")
	}

	var files chainFiles
	for _, file := range matches {
		base := filepath.Base(file)
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, "chain_"), ".json")
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			r.log.Warn("Invalid timestamp in backup filename", zap.String("file", base), zap.Error(err))
			continue
		}
		files = append(files, chainFile{path: file, timestamp: ts})
	}
	sort.Sort(files)
	return files, nil
}

func (r *backupRotator) list() ([]string, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

func (r *backupRotator) cleanupOldFiles() error {
	files, err := r.files()
	if err != nil {
		return err
	}
	if len(files) <= r.keep {
		return nil
	}

	// Remove older files, keeping the most recent 'keep' files
	for i := 0; i < len(files)-r.keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			r.log.Warn("Failed to remove old backup", zap.String("file", files[i].path), zap.Error(err))
		}
	}
	return nil
}
