// Package upstream loads source images, either over HTTP for absolute URLs
// or from the public directory for rooted local paths.
package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/time/rate"

	"pixopt/imagetype"
	"pixopt/logger"
	"pixopt/models"
)

// DefaultTimeout bounds one upstream fetch.
const DefaultTimeout = 7 * time.Second

// MaxBodySize caps how much of an upstream response is read.
const MaxBodySize = 50 << 20

var (
	ErrUpstreamTimeout = zerr.New(`"url" parameter is valid but upstream response timed out`)
	ErrUpstreamStatus  = zerr.New(`"url" parameter is valid but upstream response is invalid`)
	ErrNotFound        = zerr.New("local image not found")
	ErrTooLarge        = zerr.New("upstream image is too large")
)

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if z, ok := e.(*zerr.Error); ok {
			if code, ok := z.Metadata()["status"].(int); ok {
				return code
			}
		}
	}
	return 0
}

// HTTPFetcher fetches absolute http(s) URLs.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
	// Limiter, when set, caps the rate of outgoing fetches.
	Limiter *rate.Limiter
}

// NewHTTPFetcher returns a fetcher with the default timeout. perSecond <= 0
// disables rate limiting.
func NewHTTPFetcher(perSecond float64) *HTTPFetcher {
	f := &HTTPFetcher{Client: &http.Client{}, Timeout: DefaultTimeout}
	if perSecond > 0 {
		f.Limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
	return f
}

// Fetch downloads href.
func (f *HTTPFetcher) Fetch(ctx context.Context, href string) (models.UpstreamImage, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return models.UpstreamImage{}, f.wrap(ctx, err, href)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return models.UpstreamImage{}, zerr.With(zerr.Wrap(err, "failed to build upstream request"), "href", href)
	}
	req.Header.Set("Accept", "image/*")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.UpstreamImage{}, f.wrap(ctx, err, href)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debugf("upstream %s answered %d", href, resp.StatusCode)
		return models.UpstreamImage{}, zerr.With(zerr.With(zerr.Wrap(ErrUpstreamStatus, ""), "status", resp.StatusCode), "href", href)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return models.UpstreamImage{}, f.wrap(ctx, err, href)
	}
	if len(body) > MaxBodySize {
		return models.UpstreamImage{}, zerr.With(zerr.Wrap(ErrTooLarge, ""), "href", href)
	}

	return models.UpstreamImage{
		Buffer:       body,
		ContentType:  resp.Header.Get("Content-Type"),
		CacheControl: resp.Header.Get("Cache-Control"),
	}, nil
}

func (f *HTTPFetcher) wrap(ctx context.Context, err error, href string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return zerr.With(zerr.Wrap(ErrUpstreamTimeout, ""), "href", href)
	}
	return zerr.With(zerr.Wrap(err, "upstream fetch failed"), "href", href)
}

// LocalFetcher reads rooted paths from a directory.
type LocalFetcher struct {
	Root string
}

// Fetch reads the file named by the path part of href. The content type is
// taken from the extension, then from the file's signature.
func (f *LocalFetcher) Fetch(ctx context.Context, href string) (models.UpstreamImage, error) {
	if err := ctx.Err(); err != nil {
		return models.UpstreamImage{}, err
	}
	p, _, _ := strings.Cut(href, "?")
	p, _, _ = strings.Cut(p, "#")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	// Clean on a rooted path cannot climb above "/".
	full := filepath.Join(f.Root, filepath.FromSlash(path.Clean("/"+p)))

	data, err := os.ReadFile(full) //nolint:gosec // confined to Root above
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.UpstreamImage{}, zerr.With(zerr.Wrap(ErrNotFound, ""), "href", href)
		}
		return models.UpstreamImage{}, zerr.With(zerr.Wrap(err, "failed to read local image"), "href", href)
	}

	contentType := imagetype.ContentTypeFor(strings.TrimPrefix(filepath.Ext(full), "."))
	if contentType == "" {
		contentType = imagetype.Detect(data)
	}
	return models.UpstreamImage{Buffer: data, ContentType: contentType}, nil
}

// Router sends absolute URLs to Remote and rooted paths to Local.
type Router struct {
	Remote *HTTPFetcher
	Local  *LocalFetcher
}

// Fetch dispatches href.
func (r *Router) Fetch(ctx context.Context, href string) (models.UpstreamImage, error) {
	if strings.HasPrefix(href, "/") {
		if r.Local == nil {
			return models.UpstreamImage{}, zerr.With(zerr.New("no local fetcher configured"), "href", href)
		}
		return r.Local.Fetch(ctx, href)
	}
	if r.Remote == nil {
		return models.UpstreamImage{}, zerr.With(zerr.New("no remote fetcher configured"), "href", href)
	}
	return r.Remote.Fetch(ctx, href)
}
