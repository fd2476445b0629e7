package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spboyer/promptbench/internal/models"
)

// FileStore keeps one JSON document per run in a directory. Runs are loaded
// lazily on first access and every change is written through to disk.
type FileStore struct {
	dir string

	mu      sync.RWMutex
	runs   map[string]*models.Run
	loaded bool
}

// NewFileStore creates a FileStore that persists runs under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:  dir,
		runs: make(map[string]*models.Run),
	}
}

// load reads all run JSON files from the configured directory.
func (fs *FileStore) load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.loaded {
		return nil
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			fs.loaded = true
			return nil
		}
		return &PersistenceError{Op: "load", Err: err}
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, e.Name()))
		if err != nil {
			continue
		}
		var run models.Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		if run.ID == "" {
			run.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		fs.runs[run.ID] = &run
	}

	fs.loaded = true
	return nil
}

// ensureLoaded loads data if not already loaded.
func (fs *FileStore) ensureLoaded() error {
	fs.mu.RLock()
	if fs.loaded {
		fs.mu.RUnlock()
		return nil
	}
	fs.mu.RUnlock()
	return fs.load()
}

// write persists run; the caller holds fs.mu.
func (fs *FileStore) write(op string, run *models.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.ID, err)
	}
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return &PersistenceError{Op: op, RunID: run.ID, Err: err}
	}

	path := filepath.Join(fs.dir, run.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &PersistenceError{Op: op, RunID: run.ID, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &PersistenceError{Op: op, RunID: run.ID, Err: err}
	}
	return nil
}

func (fs *FileStore) Insert(_ context.Context, run *models.Run) error {
	if err := fs.ensureLoaded(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	stored := run.Clone()
	if err := fs.write("insert", stored); err != nil {
		return err
	}
	fs.runs[run.ID] = stored
	return nil
}

func (fs *FileStore) FindByID(_ context.Context, id string) (*models.Run, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	run, ok := fs.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

func (fs *FileStore) UpdateFields(_ context.Context, id string, fields models.Fields) error {
	if err := fs.ensureLoaded(); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	run, ok := fs.runs[id]
	if !ok {
		return ErrRunNotFound
	}

	updated := run.Clone()
	if err := updated.Apply(fields); err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}
	if err := fs.write("update", updated); err != nil {
		return err
	}
	fs.runs[id] = updated
	return nil
}

func (fs *FileStore) List(_ context.Context, filter ListFilter) ([]*models.Run, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return listRuns(fs.runs, filter), nil
}
