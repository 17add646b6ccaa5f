package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flanksource/commons/logger"

	"github.com/pthomasgarcia/packwatch/internal/apperrors"
)

// Cache is a content-addressed, single-file-per-URL response cache keyed
// by sha256(url), grounded on the teacher's pkg/cache.GetCachePath /
// SaveToCache / ValidateCachedFile trio but collapsed to one file per
// entry per spec.md §3's CacheEntry shape (no separate metadata sidecar
// beyond the file's own mtime, which doubles as the freshness clock).
type Cache struct {
	dir string
	ttl time.Duration
}

// NewCache returns a Cache rooted at dir with the given freshness TTL.
func NewCache(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl}
}

// keyFor returns the content-addressed path for rawURL.
func (c *Cache) keyFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Lookup returns the cached file path for rawURL if it exists and is
// still fresh (mtime within ttl), and ok=false otherwise.
func (c *Cache) Lookup(rawURL string) (path string, ok bool) {
	p := c.keyFor(rawURL)
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if time.Since(info.ModTime()) > c.ttl {
		logger.Debugf("fetch: cache entry for %s expired", rawURL)
		return "", false
	}
	return p, true
}

// Store copies the contents of r into the cache under rawURL's key,
// using a temp-file-then-rename so a concurrent Lookup never observes a
// partially written entry.
func (c *Cache) Store(rawURL string, r io.Reader) (string, error) {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return "", apperrors.Wrap(apperrors.Cache, err, "create cache directory")
	}

	tmp, err := os.CreateTemp(c.dir, ".cache-*.tmp")
	if err != nil {
		return "", apperrors.Wrap(apperrors.Cache, err, "create temp cache file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", apperrors.Wrap(apperrors.Cache, err, "write cache file")
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.Cache, err, "close cache file")
	}

	dest := c.keyFor(rawURL)
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", apperrors.Wrap(apperrors.Cache, err, "rename cache file into place")
	}
	return dest, nil
}

// Sweep deletes cache entries older than ttl, returning the count
// removed. Intended to be called periodically (e.g. once per CLI
// invocation) rather than on every lookup.
func (c *Cache) Sweep() (int, error) {
	matches, err := doublestar.Glob(os.DirFS(c.dir), "*")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, apperrors.Wrap(apperrors.Cache, err, "enumerate cache directory")
	}

	removed := 0
	for _, name := range matches {
		full := filepath.Join(c.dir, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		if time.Since(info.ModTime()) > c.ttl {
			if err := os.Remove(full); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
