package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixopt/imagetype"
)

var pngSig = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

func TestHTTPFetcherOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/*", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=300")
		w.Write(pngSig)
	}))
	defer srv.Close()

	up, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, pngSig, up.Buffer)
	assert.Equal(t, "image/png", up.ContentType)
	assert.Equal(t, "max-age=300", up.CacheControl)
}

func TestHTTPFetcherStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL+"/a.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamStatus))
	assert.False(t, errors.Is(err, ErrUpstreamTimeout))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Equal(t, `"url" parameter is valid but upstream response is invalid`, err.Error())
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewHTTPFetcher(0)
	f.Timeout = 20 * time.Millisecond
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamTimeout))
	assert.Zero(t, StatusCode(err))
}

func TestHTTPFetcherTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(0).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUpstreamTimeout))
	assert.False(t, errors.Is(err, ErrUpstreamStatus))
}

func TestHTTPFetcherRateLimit(t *testing.T) {
	f := NewHTTPFetcher(2)
	require.NotNil(t, f.Limiter)
	assert.Nil(t, NewHTTPFetcher(0).Limiter)
}

func TestLocalFetcher(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "a b.png"), pngSig, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "noext"), pngSig, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.png"), pngSig, 0o644))

	f := &LocalFetcher{Root: root}
	ctx := context.Background()

	up, err := f.Fetch(ctx, "/img/a%20b.png?v=2")
	require.NoError(t, err)
	assert.Equal(t, pngSig, up.Buffer)
	assert.Equal(t, imagetype.PNG, up.ContentType)
	assert.Empty(t, up.CacheControl)

	up, err = f.Fetch(ctx, "/img/noext")
	require.NoError(t, err)
	assert.Equal(t, imagetype.PNG, up.ContentType)

	_, err = f.Fetch(ctx, "/../secret.png")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.Fetch(ctx, "/missing.png")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.png"), []byte("local"), 0o644))

	r := &Router{Remote: NewHTTPFetcher(0), Local: &LocalFetcher{Root: root}}
	up, err := r.Fetch(context.Background(), "/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), up.Buffer)

	up, err = r.Fetch(context.Background(), srv.URL+"/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("remote"), up.Buffer)

	_, err = (&Router{}).Fetch(context.Background(), "/a.png")
	assert.Error(t, err)
}
