package optimizer

import (
	"context"
	"time"

	"pixopt/models"
)

// Outcome is the result of one miss or revalidation.
type Outcome struct {
	Result models.OptimizeResult
	// Entry is nil when the cache write failed; CacheErr says why.
	Entry    *models.CacheEntry
	CacheErr error
	// Duration covers fetch, transcode and cache write.
	Duration time.Duration
}

// Pipeline fetches, optimizes and stores one image.
type Pipeline struct {
	Fetcher    Fetcher
	Transcoder Transcoder
	Store      Store
}

// Run produces the optimized image for req and writes it under key. Fetch and
// content errors are returned; a failed cache write is reported in the
// Outcome only, since the bytes are still good to serve.
func (p *Pipeline) Run(ctx context.Context, key string, req models.ImageRequest) (Outcome, error) {
	start := time.Now()

	up, err := p.Fetcher.Fetch(ctx, req.Href)
	if err != nil {
		return Outcome{}, err
	}

	res, err := Optimize(ctx, p.Transcoder, up, models.OptimizeParams{
		Width:    req.Width,
		Quality:  req.Quality,
		MimeType: req.MimeType,
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Result: res}
	out.Entry, out.CacheErr = p.Store.Set(ctx, key, models.CacheValue{
		Buffer:    res.Buffer,
		Extension: res.Extension,
		MaxAge:    res.MaxAge,
	})
	out.Duration = time.Since(start)
	return out, nil
}
