package imagecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"pixopt/models"
)

func TestGetCacheKeyDeterministic(t *testing.T) {
	a := GetCacheKey("https://img.example.com/a.png", 640, 75, "image/webp")
	b := GetCacheKey("https://img.example.com/a.png", 640, 75, "image/webp")
	assert.Equal(t, a, b)
	assert.Len(t, a, 43, "sha256 in unpadded base64url")
	assert.NotContains(t, a, "=")
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")

	req := models.ImageRequest{Href: "https://img.example.com/a.png", Width: 640, Quality: 75, MimeType: "image/webp"}
	assert.Equal(t, a, KeyFor(req))
}

func TestGetCacheKeyDistinct(t *testing.T) {
	seen := map[string]string{}
	add := func(href string, w, q int, mime string) {
		key := GetCacheKey(href, w, q, mime)
		id := fmt.Sprintf("%s|%d|%d|%s", href, w, q, mime)
		prev, dup := seen[key]
		assert.False(t, dup, "%s collides with %s", id, prev)
		seen[key] = id
	}

	for i := range 200 {
		for _, w := range []int{16, 640, 1080} {
			for _, q := range []int{1, 75, 100} {
				for _, mime := range []string{"", "image/webp", "image/avif"} {
					add(fmt.Sprintf("/img/%d.png", i), w, q, mime)
				}
			}
		}
	}
	// adjacent fields must not run together
	add("/a1", 640, 75, "")
	add("/a", 1640, 75, "")
}
