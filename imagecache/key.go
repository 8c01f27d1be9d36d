package imagecache

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"

	"pixopt/models"
)

// CacheVersion is mixed into every key. Bumping it orphans all existing
// entries without touching them on disk.
const CacheVersion = 4

// GetCacheKey fingerprints a transcode request. Fields are NUL separated so
// that adjacent values cannot run into each other ("a1"+"640" vs "a"+"1640").
func GetCacheKey(href string, width, quality int, mimeType string) string {
	h := sha256.New()
	for _, part := range []string{
		strconv.Itoa(CacheVersion),
		href,
		strconv.Itoa(width),
		strconv.Itoa(quality),
		mimeType,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// KeyFor returns the cache key of a validated request.
func KeyFor(req models.ImageRequest) string {
	return GetCacheKey(req.Href, req.Width, req.Quality, req.MimeType)
}
