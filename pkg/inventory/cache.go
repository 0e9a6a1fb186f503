package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type cacheEntry struct {
	Key       string          `json:"key"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// FileCache stores each key in its own JSON file. Entries older than the TTL are ignored,
// a zero TTL never expires.
type FileCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewFileCache(dir string, ttl time.Duration) *FileCache {
	return &FileCache{dir: dir, ttl: ttl, now: time.Now}
}

func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, PluginName+"_"+hex.EncodeToString(sum[:8])+".json")
}

// Get decodes the cached value into out. It returns false on a miss or an expired entry.
func (c *FileCache) Get(key string, out interface{}) (bool, error) {
	data, err := os.ReadFile(c.path(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}

	entry := &cacheEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		// a corrupted entry is refreshed
		return false, nil
	}
	if entry.Key != key {
		return false, nil
	}
	if c.ttl > 0 && c.now().Sub(entry.Timestamp) > c.ttl {
		return false, nil
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *FileCache) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(&cacheEntry{Key: key, Timestamp: c.now(), Data: data})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir %s: %w", c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}
