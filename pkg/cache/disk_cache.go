package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// cacheRetentionPeriod is how long cache files are kept before cleanup.
	cacheRetentionPeriod = 30 * 24 * time.Hour // 30 days
	// cacheDirPerms is the permission for cache directories.
	cacheDirPerms = 0o700
	// cacheFilePerms is the permission for cache files.
	cacheFilePerms = 0o600
)

// Recommended TTLs.
const (
	// TTLCheckResults is for CI summaries keyed by commit SHA. A SHA's checks can still
	// be re-run, so entries are kept short.
	TTLCheckResults = 10 * time.Minute

	// TTLMergedPR is for data about merged pull requests, which no longer changes.
	TTLMergedPR = 28 * 24 * time.Hour // 28 days
)

// HitType indicates where a cache value was found.
type HitType string

// Lookup results.
const (
	HitMemory HitType = "memory"
	HitDisk   HitType = "disk"
	Miss      HitType = "miss"
)

type diskEntry struct {
	Value      json.RawMessage `json:"value"`
	Expiration time.Time       `json:"expiration"`
	CachedAt   time.Time       `json:"cached_at"`
}

// DiskCache provides two-tier caching: in-memory plus JSON files on disk.
// V must round-trip through encoding/json.
type DiskCache[V any] struct {
	*Cache[V]

	cacheDir string
	enabled  bool
}

// NewDiskCache creates a cache with disk persistence.
// If cacheDir is empty, it falls back to memory only.
func NewDiskCache[V any](ttl time.Duration, cacheDir string) (*DiskCache[V], error) {
	dc := &DiskCache[V]{
		Cache:   New[V](ttl),
		enabled: cacheDir != "",
	}
	if !dc.enabled {
		return dc, nil
	}

	cleanPath := filepath.Clean(cacheDir)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("cache directory must be absolute path")
	}
	if err := os.MkdirAll(cleanPath, cacheDirPerms); err != nil {
		slog.Warn("Failed to create cache directory, falling back to memory-only", "error", err, "path", cleanPath)
		dc.enabled = false
		return dc, nil
	}
	dc.cacheDir = cleanPath
	go dc.cleanOldCaches()
	return dc, nil
}

// Get retrieves a value from memory, then disk.
func (c *DiskCache[V]) Get(key string) (V, bool) {
	value, hit := c.Lookup(key)
	return value, hit != Miss
}

// Lookup retrieves a value and reports where it was found.
func (c *DiskCache[V]) Lookup(key string) (V, HitType) {
	if value, ok := c.Cache.Get(key); ok {
		return value, HitMemory
	}

	var zero V
	if !c.enabled {
		return zero, Miss
	}

	var e diskEntry
	if !c.loadFromDisk(key, &e) {
		return zero, Miss
	}
	if time.Now().After(e.Expiration) {
		slog.Debug("Disk cache entry expired", "key", key, "expired_at", e.Expiration)
		c.removeFromDisk(key)
		return zero, Miss
	}

	var value V
	if err := json.Unmarshal(e.Value, &value); err != nil {
		slog.Warn("Failed to unmarshal disk cache entry", "key", key, "error", err)
		c.removeFromDisk(key)
		return zero, Miss
	}

	if ttl := time.Until(e.Expiration); ttl > 0 {
		c.Cache.SetWithTTL(key, value, ttl)
	}
	slog.Debug("Disk cache hit", "key", key, "cached_at", e.CachedAt)
	return value, HitDisk
}

// Set stores a value with the default TTL in memory and on disk.
func (c *DiskCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value in memory and on disk.
func (c *DiskCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.Cache.SetWithTTL(key, value, ttl)
	if !c.enabled {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		slog.Debug("Failed to marshal value for disk cache", "key", key, "error", err)
		return
	}
	now := time.Now()
	if err := c.saveToDisk(key, diskEntry{Value: raw, Expiration: now.Add(ttl), CachedAt: now}); err != nil {
		slog.Debug("Failed to save to disk cache", "key", key, "error", err)
	}
}

func (c *DiskCache[V]) path(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.cacheDir, hex.EncodeToString(hash[:])+".json")
}

func (c *DiskCache[V]) loadFromDisk(key string, v any) bool {
	path := c.path(key)
	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Failed to open disk cache file", "error", err, "path", path)
		}
		return false
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Debug("Failed to close disk cache file", "error", err, "path", path)
		}
	}()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		slog.Debug("Failed to decode disk cache file", "error", err, "path", path)
		return false
	}
	return true
}

// saveToDisk writes through a temp file so readers never see a partial entry.
func (c *DiskCache[V]) saveToDisk(key string, v any) error {
	path := c.path(key)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cacheFilePerms)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	if err := json.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encoding cache data: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func (c *DiskCache[V]) removeFromDisk(key string) {
	path := c.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove disk cache file", "error", err, "path", path)
	}
}

// cleanOldCaches removes cache files untouched for longer than the retention period.
func (c *DiskCache[V]) cleanOldCaches() {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		slog.Error("Failed to read cache directory", "error", err)
		return
	}

	cutoff := time.Now().Add(-cacheRetentionPeriod)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.cacheDir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Cleaned old cache files", "removed", removed)
	}
}
