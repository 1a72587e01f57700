package kv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"mawneychat/pkg/state/logger"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var ErrClosed = errors.New("kv store not opened")

// Store is the durable local key-value store. Values are JSON blobs or plain strings.
type Store struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

// Open opens (or creates) a pebble store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// OpenInMemory opens a store backed by an in-memory filesystem.
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("mem", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: ":memory:"}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if s == nil || s.db == nil || s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ready() bool {
	return s != nil && s.db != nil && !s.closed.Load()
}

// Flush forces memtable contents to disk.
func (s *Store) Flush() error {
	if !s.Ready() {
		return ErrClosed
	}
	return s.db.Flush()
}

func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (s *Store) GetKey(key string) (string, error) {
	if !s.Ready() {
		return "", ErrClosed
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if IsNotFound(err) {
			logger.Debug("get_key_missing", "key", key)
		} else {
			logger.Error("get_key_failed", "key", key, "error", err)
		}
		return "", err
	}
	defer closer.Close()
	logger.Debug("get_key_ok", "key", key, "len", len(v))
	return string(v), nil
}

func (s *Store) SaveKey(key string, value []byte) error {
	if !s.Ready() {
		return ErrClosed
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("save_key_ok", "key", key, "len", len(value))
	return nil
}

func (s *Store) DeleteKey(key string) error {
	if !s.Ready() {
		return ErrClosed
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("delete_key_ok", "key", key)
	return nil
}

// GetJSON decodes the value at key into v. found is false when the key is absent.
func (s *Store) GetJSON(key string, v any) (found bool, err error) {
	raw, err := s.GetKey(key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it at key.
func (s *Store) SaveJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.SaveKey(key, b)
}

// Iterate calls fn for every key with prefix, in key order. Returning an
// error from fn stops the scan.
func (s *Store) Iterate(prefix string, fn func(key, value []byte) error) error {
	if !s.Ready() {
		return ErrClosed
	}
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ListKeys returns every key with prefix.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	var out []string
	err := s.Iterate(prefix, func(k, _ []byte) error {
		out = append(out, string(k))
		return nil
	})
	return out, err
}

// Batch is a set of writes applied atomically by Commit.
type Batch struct {
	b *pebble.Batch
}

func (b *Batch) Set(key string, value []byte) error {
	return b.b.Set([]byte(key), value, nil)
}

func (b *Batch) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(key, raw)
}

func (b *Batch) Delete(key string) error {
	return b.b.Delete([]byte(key), nil)
}

// Update runs fn against a fresh batch and commits it synchronously if fn succeeds.
func (s *Store) Update(fn func(b *Batch) error) error {
	if !s.Ready() {
		return ErrClosed
	}
	pb := s.db.NewBatch()
	defer pb.Close()
	if err := fn(&Batch{b: pb}); err != nil {
		return err
	}
	if err := pb.Commit(pebble.Sync); err != nil {
		logger.Error("batch_commit_failed", "error", err)
		return err
	}
	return nil
}
