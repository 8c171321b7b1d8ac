package thumbnail

import (
	"crypto/md5"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Cache is a flat on-disk thumbnail cache keyed by the source file's
// identity (path + mtime + size) and the profile that produced the
// thumbnail. Misses are always safe: a cold or damaged cache only costs
// a re-derivation.
type Cache struct {
	dir string
}

// NewCache creates the cache directory if needed. An empty dir disables
// caching and returns nil.
func NewCache(dir string) *Cache {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("thumbnail cache disabled, cannot create %s: %v", dir, err)
		return nil
	}
	return &Cache{dir: dir}
}

func (c *Cache) key(path string, profile Profile) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d|%s|%d",
		path, info.ModTime().UnixNano(), info.Size(), profile.Name, profile.TargetSize)))
	return fmt.Sprintf("%x.jpg", sum), nil
}

// Get returns the cached thumbnail for (path, profile), or nil on miss.
func (c *Cache) Get(path string, profile Profile) image.Image {
	if c == nil {
		return nil
	}
	key, err := c.key(path, profile)
	if err != nil {
		return nil
	}

	f, err := os.Open(filepath.Join(c.dir, key))
	if err != nil {
		metrics.ThumbnailCacheMisses.Inc()
		return nil
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		metrics.ThumbnailCacheMisses.Inc()
		logging.Warn("damaged thumbnail cache entry %s: %v", key, err)
		return nil
	}
	metrics.ThumbnailCacheHits.Inc()
	return img
}

// Put stores a derived thumbnail. Failures are logged, never returned:
// the thumbnail itself is already in hand.
func (c *Cache) Put(path string, profile Profile, img image.Image) {
	if c == nil || img == nil {
		return
	}
	key, err := c.key(path, profile)
	if err != nil {
		return
	}

	quality := profile.Quality
	if quality <= 0 {
		quality = 85
	}

	target := filepath.Join(c.dir, key)
	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		logging.Warn("thumbnail cache write failed for %s: %v", key, err)
		return
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(tmp)
		logging.Warn("thumbnail cache encode failed for %s: %v", key, err)
		return
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		logging.Warn("thumbnail cache rename failed for %s: %v", key, err)
	}
}
