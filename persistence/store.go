package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meshify/agentbus-go/contracts"
)

// Store is the durable record of envelopes awaiting acknowledgment.
type Store interface {
	// Save writes or overwrites the record for the envelope's id.
	Save(ctx context.Context, env *contracts.Envelope) error

	// Delete removes the record for id. Deleting an absent record is a
	// no-op.
	Delete(ctx context.Context, id string) error

	// LoadAll returns every stored envelope. Called once at startup.
	LoadAll(ctx context.Context) ([]*contracts.Envelope, error)

	// Close releases store resources.
	Close() error
}

const fileExt = ".json"

// FileStore keeps one JSON file per envelope in a directory. Writes go
// through a temp file and rename so a crash never leaves a torn record.
type FileStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the logger used for skip warnings during load.
func WithFileStoreLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = logger }
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &FileStore{dir: dir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save writes the envelope record atomically.
func (s *FileStore) Save(ctx context.Context, env *contracts.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return &contracts.PersistenceError{Op: "save", EnvelopeID: env.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(env.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &contracts.PersistenceError{Op: "save", EnvelopeID: env.ID, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &contracts.PersistenceError{Op: "save", EnvelopeID: env.ID, Err: err}
	}
	return nil
}

// Delete removes the envelope record.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &contracts.PersistenceError{Op: "delete", EnvelopeID: id, Err: err}
	}
	return nil
}

// LoadAll reads every record in the directory. Unreadable records are logged
// and skipped rather than failing the whole recovery.
func (s *FileStore) LoadAll(ctx context.Context) ([]*contracts.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &contracts.PersistenceError{Op: "load", Err: err}
	}

	envelopes := make([]*contracts.Envelope, 0, len(dirEntries))
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable envelope record", "path", path, "error", err)
			continue
		}
		env, err := contracts.UnmarshalEnvelope(data)
		if err != nil {
			s.logger.Warn("skipping corrupt envelope record", "path", path, "error", err)
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}
