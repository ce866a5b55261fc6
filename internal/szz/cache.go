package szz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/repograph/internal/git"
)

const blameBucket = "blame"

// BlameCache stores blame results in bbolt. History is immutable, so an
// entry keyed by revision, path and ranges never goes stale.
type BlameCache struct {
	db *bolt.DB
}

// OpenBlameCache opens or creates the cache file at path
func OpenBlameCache(path string) (*BlameCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open blame cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(blameBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize blame cache: %w", err)
	}
	return &BlameCache{db: db}, nil
}

// Get returns cached blame lines. A nil cache always misses.
func (c *BlameCache) Get(key string) ([]git.BlameLine, bool) {
	if c == nil {
		return nil, false
	}
	var (
		lines []git.BlameLine
		found bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(blameBucket))
		if bucket == nil {
			return bolt.ErrBucketNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &lines)
	})
	if err != nil {
		return nil, false
	}
	return lines, found
}

// Put stores blame lines under key
func (c *BlameCache) Put(key string, lines []git.BlameLine) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(blameBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(lines)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}

// Close closes the cache file
func (c *BlameCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// cacheKey identifies one blame invocation
func cacheKey(rev, path string, ranges []git.LineRange, ignoreWhitespace bool) string {
	var b strings.Builder
	b.WriteString(rev)
	b.WriteByte(0)
	b.WriteString(path)
	b.WriteByte(0)
	for i, r := range ranges {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%d,%d", r.Start, r.End)
	}
	if ignoreWhitespace {
		b.WriteString("\x00w")
	}
	return b.String()
}
