// Package boltstore provides a disk-backed cache backend on top of
// go.etcd.io/bbolt, for deployments that want cached responses to survive a
// process restart.
package boltstore

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/crgwbr/knit/pkg/cache"
)

var bucketName = []byte("cache")

type record struct {
	Entry     cache.Entry `yaml:"entry"`
	ExpiresAt time.Time   `yaml:"expires_at"`
}

// Backend stores entries in a single bbolt bucket, YAML-encoded.
type Backend struct {
	db *bolt.DB
}

// Open creates or opens a bbolt database at path.
func Open(path string) (*Backend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}
	return &Backend{db: db}, nil
}

// Close releases the underlying database file.
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Get(key string) (cache.Entry, bool, error) {
	var rec record
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return yaml.Unmarshal(raw, &rec)
	})
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("boltstore: get %s: %w", key, err)
	}
	if !found {
		return cache.Entry{}, false, nil
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = b.Delete(key)
		return cache.Entry{}, false, nil
	}
	return rec.Entry, true, nil
}

func (b *Backend) Set(key string, entry cache.Entry, ttl time.Duration) error {
	rec := record{Entry: entry, ExpiresAt: time.Now().Add(ttl)}
	raw, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("boltstore: encode %s: %w", key, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), raw)
	})
}

func (b *Backend) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}
