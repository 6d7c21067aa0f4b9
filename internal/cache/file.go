package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Items    json.RawMessage `json:"items"`
}

func encodeEntry(items any) ([]byte, bool) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, false
	}
	data, err := json.Marshal(entry{CachedAt: time.Now(), Items: raw})
	if err != nil {
		return nil, false
	}
	return data, true
}

func decodeEntry(data []byte, ttl time.Duration, dst any) bool {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if time.Since(e.CachedAt) > ttl {
		return false
	}
	return json.Unmarshal(e.Items, dst) == nil
}

// fileBackend stores entries as JSON files. TTL is enforced at read time
// from the embedded cached_at stamp.
type fileBackend struct {
	dir string
}

func (f *fileBackend) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *fileBackend) read(key string) ([]byte, bool) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (f *fileBackend) write(key string, data []byte, _ time.Duration) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return
	}
	// Atomic-ish write: write temp then rename.
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return
	}
	_ = os.Rename(tmp, path)
}

func (f *fileBackend) remove(key string) {
	_ = os.Remove(f.path(key))
}
