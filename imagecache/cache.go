// Package imagecache stores optimized images on disk, one directory per
// cache key. The single file in each directory carries the entry's metadata
// in its name: <maxAge>.<expireAt>.<extension>. Files are written under a
// temporary name and renamed into place, so a reader never sees a partial
// entry.
package imagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"

	"pixopt/logger"
	"pixopt/models"
)

// ErrInvalidMaxAge is returned by Set for a negative max age.
var ErrInvalidMaxAge = zerr.New("invariant: maxAge must be a non-negative number of seconds")

// Cache is the disk cache rooted at <distDir>/cache/images.
type Cache struct {
	dir      string
	clock    clockwork.Clock
	inflight singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for expiry.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// New returns a cache under distDir. Nothing is created until the first Set.
func New(distDir string, opts ...Option) *Cache {
	c := &Cache{
		dir:   filepath.Join(distDir, "cache", "images"),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the directory holding all key directories.
func (c *Cache) Root() string {
	return c.dir
}

// Dir returns the directory of a cache key.
func (c *Cache) Dir(key string) string {
	return filepath.Join(c.dir, key)
}

// Path returns the file backing entry under key.
func (c *Cache) Path(key string, entry *models.CacheEntry) string {
	return filepath.Join(c.Dir(key), fileName(entry.Value.MaxAge, entry.ExpireAt, entry.Value.Extension))
}

const tempPrefix = ".tmp-"

func isTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func fileName(maxAge int, expireAt int64, ext string) string {
	return fmt.Sprintf("%d.%d.%s", maxAge, expireAt, ext)
}

// parseName splits <maxAge>.<expireAt>.<extension>.
func parseName(name string) (maxAge int, expireAt int64, ext string, ok bool) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) != 3 || parts[2] == "" {
		return 0, 0, "", false
	}
	maxAge, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", false
	}
	expireAt, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, "", false
	}
	return maxAge, expireAt, parts[2], true
}

// Get returns the entry for key. Any read or parse problem is a miss.
func (c *Cache) Get(ctx context.Context, key string) (*models.CacheEntry, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	dir := c.Dir(key)
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	now := c.clock.Now().UnixMilli()
	for _, f := range files {
		if f.IsDir() || isTemp(f.Name()) {
			continue
		}
		maxAge, expireAt, ext, ok := parseName(f.Name())
		if !ok {
			logger.Debugf("imagecache: ignoring unparseable entry %s/%s", key, f.Name())
			return nil, false
		}
		buf, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, false
		}
		return &models.CacheEntry{
			Value: models.CacheValue{
				Buffer:    buf,
				Extension: ext,
				MaxAge:    maxAge,
			},
			ExpireAt: expireAt,
			IsStale:  now > expireAt,
		}, true
	}
	return nil, false
}

// Set replaces whatever is stored under key. Callers racing on the same key
// share the first caller's write and its result. The shared write does not
// depend on any caller's context.
func (c *Cache) Set(ctx context.Context, key string, value models.CacheValue) (*models.CacheEntry, error) {
	if value.MaxAge < 0 {
		return nil, zerr.With(zerr.Wrap(ErrInvalidMaxAge, "cache set"), "maxAge", value.MaxAge)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, shared := c.inflight.Do(key, func() (any, error) {
		expireAt := c.clock.Now().Add(time.Duration(value.MaxAge) * time.Second).UnixMilli()
		if err := c.write(key, value, expireAt); err != nil {
			return nil, err
		}
		return &models.CacheEntry{Value: value, ExpireAt: expireAt}, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debugf("imagecache: joined in-flight write for %s", key)
	}
	entry := *v.(*models.CacheEntry)
	return &entry, nil
}

func (c *Cache) write(key string, value models.CacheValue, expireAt int64) error {
	dir := c.Dir(key)
	if err := os.RemoveAll(dir); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to clear cache entry"), "key", key)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache directory"), "key", key)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create cache entry"), "key", key)
	}
	if _, err := tmp.Write(value.Buffer); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return zerr.With(zerr.Wrap(err, "failed to write cache entry"), "key", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return zerr.With(zerr.Wrap(err, "failed to write cache entry"), "key", key)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		logger.Debugf("imagecache: chmod %s: %v", tmp.Name(), err)
	}
	name := filepath.Join(dir, fileName(value.MaxAge, expireAt, value.Extension))
	if err := os.Rename(tmp.Name(), name); err != nil {
		os.Remove(tmp.Name())
		return zerr.With(zerr.Wrap(err, "failed to publish cache entry"), "key", key)
	}
	return nil
}

// Sweep removes entries that expired more than grace ago, along with key
// directories that hold nothing readable. It returns the number removed.
func (c *Cache) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	keys, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, zerr.Wrap(err, "failed to list cache directory")
	}

	cutoff := c.clock.Now().Add(-grace).UnixMilli()
	removed := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !k.IsDir() {
			continue
		}
		if !c.expired(k.Name(), cutoff) {
			continue
		}
		if err := os.RemoveAll(c.Dir(k.Name())); err != nil {
			logger.Warnf("imagecache: failed to remove %s: %v", k.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (c *Cache) expired(key string, cutoff int64) bool {
	dir := c.Dir(key)
	files, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	if len(files) == 0 {
		// may be a write between MkdirAll and CreateTemp
		info, err := os.Stat(dir)
		return err != nil || info.ModTime().UnixMilli() < cutoff
	}
	for _, f := range files {
		if isTemp(f.Name()) {
			// a write in progress, or one abandoned by a crash
			info, err := f.Info()
			if err == nil && info.ModTime().UnixMilli() >= cutoff {
				return false
			}
			continue
		}
		_, expireAt, _, ok := parseName(f.Name())
		if !ok {
			return true
		}
		if expireAt >= cutoff {
			return false
		}
	}
	return true
}
