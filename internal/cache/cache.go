// Package cache provides a small TTL cache for API responses, scoped per
// resource type, server URL, and account ID.
//
// The default backend writes JSON files under the user cache directory.
// When HOSTDESK_REDIS_ADDR is set a shared Redis backend is used instead,
// so several operator consoles on one host share warm department and
// ticket listings. Disable caching entirely with HOSTDESK_NO_CACHE=1.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const DefaultTTL = 5 * time.Minute

// Store reads and writes a single cache key (resource+server+account).
type Store struct {
	backend backend
	key     string
	ttl     time.Duration
}

// backend is the storage layer behind a Store.
type backend interface {
	read(key string) ([]byte, bool)
	write(key string, data []byte, ttl time.Duration)
	remove(key string)
}

// NewStore creates a Store with the default 5-minute TTL.
// dir is the file cache directory (typically from DefaultDir); ignored
// when the Redis backend is active.
// key is the resource type (e.g. "departments").
// baseURL is the HostDesk server URL.
func NewStore(dir, key, baseURL string, accountID int) *Store {
	return NewStoreWithTTL(dir, key, baseURL, accountID, DefaultTTL)
}

// NewStoreWithTTL creates a Store with a custom TTL.
func NewStoreWithTTL(dir, key, baseURL string, accountID int, ttl time.Duration) *Store {
	key = sanitizeKey(key)
	hash := sha1.Sum([]byte(baseURL))
	suffix := hex.EncodeToString(hash[:6])
	name := fmt.Sprintf("%s_%s_%d", key, suffix, accountID)

	var b backend
	if addr := redisAddr(); addr != "" {
		b = newRedisBackend(addr)
	} else {
		b = &fileBackend{dir: dir}
	}
	return &Store{backend: b, key: name, ttl: ttl}
}

// Get loads cached items into dst. Returns false on miss (absent,
// expired, disabled, or decode failure).
func (s *Store) Get(dst any) bool {
	if disabled() {
		return false
	}
	data, ok := s.backend.read(s.key)
	if !ok {
		return false
	}
	return decodeEntry(data, s.ttl, dst)
}

// Put writes items to the cache. Silently no-ops on error or when disabled.
func (s *Store) Put(items any) {
	if disabled() {
		return
	}
	data, ok := encodeEntry(items)
	if !ok {
		return
	}
	s.backend.write(s.key, data, s.ttl)
}

// Clear removes this cache entry.
func (s *Store) Clear() {
	s.backend.remove(s.key)
}

// ClearAll removes all cache entries. For the file backend it only
// removes files matching this project's cache filename scheme; for Redis
// it deletes keys under the hostdesk prefix.
func ClearAll(dir string) {
	if addr := redisAddr(); addr != "" {
		newRedisBackend(addr).clearAll()
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isCacheFilename(name) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, name))
	}
}

// DefaultDir returns the platform-appropriate cache directory,
// "$XDG_CACHE_HOME/hostdesk-cli" or equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "hostdesk-cli"), nil
}

func disabled() bool {
	return os.Getenv("HOSTDESK_NO_CACHE") != ""
}

func redisAddr() string {
	return strings.TrimSpace(os.Getenv("HOSTDESK_REDIS_ADDR"))
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "cache"
	}
	key = strings.ReplaceAll(key, "/", "-")
	key = strings.ReplaceAll(key, "\\", "-")
	return key
}

func isCacheFilename(name string) bool {
	// Expected: "<key>_<12hex>_<account>.json"
	if filepath.Ext(name) != ".json" {
		return false
	}
	base := strings.TrimSuffix(name, ".json")
	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		return false
	}
	if parts[0] == "" {
		return false
	}
	if len(parts[1]) != 12 || !isHex(parts[1]) {
		return false
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return false
	}
	return true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
