package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vote-ledger/models"
)

const chainFileName = "chain.json"

// ErrChainNotFound is returned by LoadChain when nothing has been persisted yet.
var ErrChainNotFound = errors.New("chain file not found")

// ChainStore persists the full ordered block sequence.
type ChainStore interface {
	LoadChain() ([]*models.Block, error)
	SaveChain(blocks []*models.Block) error
}

// JSONStore keeps the chain as one JSON array in <basePath>/chain.json. Every save
// replaces the file atomically and keeps a rotated copy of the previous version.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	backups  *backupRotator
	log      *zap.Logger
}

type Option func(*JSONStore)

// WithLogger sets the logger used for non-fatal storage warnings.
func WithLogger(log *zap.Logger) Option {
	return func(s *JSONStore) { s.log = log }
}

// WithBackups sets how many previous chain files are kept. Zero disables backups.
func WithBackups(keep int) Option {
	return func(s *JSONStore) { s.backups.keep = keep }
}

func NewJSONStore(basePath string, opts ...Option) (*JSONStore, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get absolute path")
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create directory")
	}

	store := &JSONStore{
		basePath: absPath,
		backups:  newBackupRotator(filepath.Join(absPath, "backups"), DefaultBackupsKept),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	store.backups.log = store.log
	return store, nil
}

// Path returns the location of the chain file.
func (s *JSONStore) Path() string {
	return filepath.Join(s.basePath, chainFileName)
}

func (s *JSONStore) LoadChain() ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChainNotFound
		}
		return nil, errors.Wrap(err, "failed to read chain file")
	}

	var blocks []*models.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal chain")
	}
	for i, b := range blocks {
		if b == nil {
			return nil, errors.Errorf("chain file holds a null block at position %d", i)
		}
	}
	return blocks, nil
}

func (s *JSONStore) SaveChain(blocks []*models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(blocks) == 0 {
		return errors.New("cannot save empty chain")
	}

	data, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal chain")
	}

	path := s.Path()
	if err := s.backups.snapshot(path); err != nil {
		s.log.Warn("Failed to back up previous chain file", zap.Error(err))
	}

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write chain file")
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to save chain file")
	}

	s.log.Debug("Saved chain", zap.Int("blocks", len(blocks)), zap.String("path", path))
	return nil
}

// Backups lists the retained backup files, oldest first.
func (s *JSONStore) Backups() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backups.list()
}
