// Package catalogcache persists per-provider catalog snapshots between
// runs. The cache feeds offline inspection only; live registries are always
// rebuilt by a discovery cycle, never from here.
package catalogcache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"toolhub/internal/domain"
)

const (
	schemaVersion = 1

	rootBucketName      = "catalog_cache"
	metaBucketName      = "meta"
	providersBucketName = "providers"
	versionKey          = "version"
	snapshotKey         = "snapshot"
	storedAtKey         = "stored_at"
)

var (
	ErrClosed    = errors.New("catalog cache is closed")
	ErrNotCached = errors.New("provider has no cached catalog")
)

// Entry is one provider's cached catalog with the time it was written.
type Entry struct {
	Provider string                 `json:"provider"`
	Snapshot domain.CatalogSnapshot `json:"snapshot"`
	StoredAt time.Time              `json:"storedAt"`
}

// Store is a bbolt-backed catalog cache. One bucket per provider under a
// fixed root; safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

// Open creates or opens the cache database, creating parent directories as
// needed. The one second timeout keeps a second process from hanging on the
// file lock forever.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}

	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database. Further calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Put stores a provider's snapshot, replacing any previous entry.
func (s *Store) Put(provider string, snapshot domain.CatalogSnapshot) error {
	if strings.TrimSpace(provider) == "" {
		return errors.New("provider name is required")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	storedAt := time.Now().UTC().Format(time.RFC3339Nano)

	return s.update(func(tx *bolt.Tx) error {
		providers, err := providersBucket(tx)
		if err != nil {
			return err
		}
		bucket, err := providers.CreateBucketIfNotExists([]byte(provider))
		if err != nil {
			return fmt.Errorf("create provider bucket: %w", err)
		}
		if err := bucket.Put([]byte(snapshotKey), payload); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return bucket.Put([]byte(storedAtKey), []byte(storedAt))
	})
}

// Get returns a provider's cached entry, ErrNotCached when absent.
func (s *Store) Get(provider string) (Entry, error) {
	var entry Entry
	err := s.view(func(tx *bolt.Tx) error {
		providers, err := providersBucket(tx)
		if err != nil {
			return err
		}
		bucket := providers.Bucket([]byte(provider))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrNotCached, provider)
		}
		decoded, err := decodeEntry(provider, bucket)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	return entry, err
}

// All returns every cached entry sorted by provider name.
func (s *Store) All() ([]Entry, error) {
	var entries []Entry
	err := s.view(func(tx *bolt.Tx) error {
		providers, err := providersBucket(tx)
		if err != nil {
			return err
		}
		return providers.ForEach(func(key, value []byte) error {
			if value != nil {
				// A plain key at this level is not ours; buckets only.
				return nil
			}
			bucket := providers.Bucket(key)
			if bucket == nil {
				return nil
			}
			entry, err := decodeEntry(string(key), bucket)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Provider < entries[j].Provider })
	return entries, nil
}

// Remove drops a provider's entry. Removing an absent provider is a no-op.
func (s *Store) Remove(provider string) error {
	return s.update(func(tx *bolt.Tx) error {
		providers, err := providersBucket(tx)
		if err != nil {
			return err
		}
		if providers.Bucket([]byte(provider)) == nil {
			return nil
		}
		return providers.DeleteBucket([]byte(provider))
	})
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func decodeEntry(provider string, bucket *bolt.Bucket) (Entry, error) {
	payload := bucket.Get([]byte(snapshotKey))
	if len(payload) == 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotCached, provider)
	}

	var snapshot domain.CatalogSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return Entry{}, fmt.Errorf("decode snapshot for %s: %w", provider, err)
	}

	entry := Entry{Provider: provider, Snapshot: snapshot}
	if raw := bucket.Get([]byte(storedAtKey)); len(raw) > 0 {
		if storedAt, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			entry.StoredAt = storedAt
		}
	}
	return entry, nil
}

func providersBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, errors.New("missing root bucket")
	}
	providers := root.Bucket([]byte(providersBucketName))
	if providers == nil {
		return nil, errors.New("missing providers bucket")
	}
	return providers, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create root bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(providersBucketName)); err != nil {
			return fmt.Errorf("create providers bucket: %w", err)
		}

		current := readSchemaVersion(meta)
		switch {
		case current == 0:
			return writeSchemaVersion(meta, schemaVersion)
		case current > schemaVersion:
			return fmt.Errorf("unsupported catalog cache schema version %d", current)
		default:
			return nil
		}
	})
}

func readSchemaVersion(meta *bolt.Bucket) int {
	raw := meta.Get([]byte(versionKey))
	if len(raw) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func writeSchemaVersion(meta *bolt.Bucket, version int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return meta.Put([]byte(versionKey), buf)
}
