package watchlist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
)

// ErrKeyNotFound is returned by a Store when nothing was saved under a key.
var ErrKeyNotFound = errors.New("key not found")

// Store is durable key/value storage holding serialized documents.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Close() error
}

// FileStore keeps one JSON document per key inside a directory.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates dir on fs if needed.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watchlist dir: %w", err)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(key string) ([]byte, error) {
	file, err := s.fs.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put replaces the document atomically through a temp file and rename.
func (s *FileStore) Put(key string, value []byte) error {
	target := s.path(key)
	tmp := target + ".tmp"
	file, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s temp file: %w", key, err)
	}

	if _, err := file.Write(value); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("close %s temp file: %w", key, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// BadgerStore keeps documents in an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStorageDirRequired
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for watchlist: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
