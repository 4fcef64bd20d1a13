// Package boltdb provides a kvmirror.Driver backed by a BoltDB file.
package boltdb

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"code.byted.org/khicago/kvmirror"
	"go.etcd.io/bbolt"
)

const defaultBucket = "kvmirror"

// Store provides a BoltDB-backed key-value driver. All keys live in one
// bucket.
type Store struct {
	db     *bbolt.DB
	bucket []byte
}

// Option customizes Open.
type Option func(*Store)

// WithBucket overrides the bucket name.
func WithBucket(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.bucket = []byte(name)
		}
	}
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db, bucket: []byte(defaultBucket)}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.ensureBucket(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return fmt.Errorf("create %s bucket: %w", s.bucket, err)
		}
		return nil
	})
}

func (s *Store) view(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("%s bucket is missing", s.bucket)
		}
		return fn(b)
	})
}

func (s *Store) update(ctx context.Context, fn func(b *bbolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("%s bucket is missing", s.bucket)
		}
		return fn(b)
	})
}

// Get fetches a raw value. Missing keys return kvmirror.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.view(ctx, func(b *bbolt.Bucket) error {
		v := b.Get([]byte(key))
		if v == nil {
			return kvmirror.ErrNotFound
		}
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

// Set persists a raw value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.update(ctx, func(b *bbolt.Bucket) error {
		return b.Put([]byte(key), value)
	})
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

// MGet fetches several keys in one read transaction.
func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.view(ctx, func(b *bbolt.Bucket) error {
		for _, k := range keys {
			if v := b.Get([]byte(k)); v != nil {
				out[k] = bytes.Clone(v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MSet writes several pairs in one transaction.
func (s *Store) MSet(ctx context.Context, pairs map[string][]byte) error {
	return s.update(ctx, func(b *bbolt.Bucket) error {
		for k, v := range pairs {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("put %s: %w", k, err)
			}
		}
		return nil
	})
}

// MDel removes several keys in one transaction.
func (s *Store) MDel(ctx context.Context, keys []string) error {
	return s.update(ctx, func(b *bbolt.Bucket) error {
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// Keys lists keys starting with prefix in byte order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.view(ctx, func(b *bbolt.Bucket) error {
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Clear removes every key starting with prefix.
func (s *Store) Clear(ctx context.Context, prefix string) error {
	return s.update(ctx, func(b *bbolt.Bucket) error {
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Seek(p) {
			if err := c.Delete(); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

var _ kvmirror.Driver = (*Store)(nil)
