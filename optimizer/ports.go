package optimizer

import (
	"context"

	"pixopt/encoder"
	"pixopt/models"
)

// Transcoder resizes and re-encodes one image.
//
//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
type Transcoder interface {
	Transcode(ctx context.Context, opts encoder.Options) ([]byte, error)
}

// Fetcher loads the unoptimized source image for an href.
type Fetcher interface {
	Fetch(ctx context.Context, href string) (models.UpstreamImage, error)
}

// Store persists optimized images.
type Store interface {
	Set(ctx context.Context, key string, value models.CacheValue) (*models.CacheEntry, error)
}
