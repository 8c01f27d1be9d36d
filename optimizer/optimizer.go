// Package optimizer turns an upstream image into the bytes that get cached
// and served: it classifies the source, transcodes it and falls back to the
// original bytes when the codec fails.
package optimizer

import (
	"context"
	"strings"
	"time"

	"go.trai.ch/zerr"

	"pixopt/encoder"
	"pixopt/imagetype"
	"pixopt/models"
)

const (
	// MinMaxAge is the shortest cache lifetime of a transcoded image.
	MinMaxAge = 60
	// FallbackMaxAge is the cache lifetime of unoptimized fallback bytes.
	FallbackMaxAge = 60
	// AVIFEffort is the encoder effort used for AVIF output.
	AVIFEffort = 3
	// DefaultLimitInputPixels rejects decompression bombs (16383 x 16383).
	DefaultLimitInputPixels = 0x3FFF * 0x3FFF
	// TranscodeTimeout bounds one codec call.
	TranscodeTimeout = 7 * time.Second
)

var (
	ErrSVGNotAllowed    = zerr.New(`"url" parameter is valid but image type svg is not allowed`)
	ErrInvalidImage     = zerr.New("The requested resource isn't a valid image.")
	ErrUnableToOptimize = zerr.New("Unable to optimize image and unable to fallback to upstream image")
)

// AVIFQuality maps a jpeg-style quality to the lower number AVIF needs for
// similar fidelity.
func AVIFQuality(quality int) int {
	return max(quality-20, 1)
}

// UpstreamType returns the normalised declared content type, or the sniffed
// one when none was declared.
func UpstreamType(up models.UpstreamImage) string {
	if t := strings.ToLower(strings.TrimSpace(up.ContentType)); t != "" {
		return t
	}
	return imagetype.Detect(up.Buffer)
}

// baseType drops MIME parameters such as "; charset=binary".
func baseType(t string) string {
	base, _, _ := strings.Cut(t, ";")
	return strings.TrimSpace(base)
}

// Optimize transcodes up according to p. Codec failures are absorbed by
// returning the upstream bytes with Error set, unless the upstream type is
// unknown.
func Optimize(ctx context.Context, t Transcoder, up models.UpstreamImage, p models.OptimizeParams) (models.OptimizeResult, error) {
	maxAge := GetMaxAge(up.CacheControl)
	upstreamType := UpstreamType(up)

	if upstreamType != "" {
		if strings.HasPrefix(upstreamType, "image/svg") {
			return models.OptimizeResult{}, zerr.With(zerr.Wrap(ErrSVGNotAllowed, ""), "upstream_type", upstreamType)
		}
		if !strings.HasPrefix(upstreamType, "image/") || strings.Contains(upstreamType, ",") {
			return models.OptimizeResult{}, zerr.With(zerr.Wrap(ErrInvalidImage, ""), "upstream_type", upstreamType)
		}
	}

	contentType := p.MimeType
	if contentType == "" {
		contentType = imagetype.JPEG
	}

	opts := encoder.Options{
		Buffer:           up.Buffer,
		ContentType:      contentType,
		Quality:          p.Quality,
		Width:            p.Width,
		LimitInputPixels: DefaultLimitInputPixels,
		Timeout:          TranscodeTimeout,
	}
	if contentType == imagetype.AVIF {
		opts.Quality = AVIFQuality(p.Quality)
		opts.Effort = AVIFEffort
	}

	buf, err := t.Transcode(ctx, opts)
	if err == nil {
		return models.OptimizeResult{
			Buffer:      buf,
			ContentType: contentType,
			Extension:   imagetype.Extension(contentType),
			MaxAge:      max(maxAge, MinMaxAge),
		}, nil
	}

	if upstreamType == "" {
		return models.OptimizeResult{}, zerr.With(zerr.Wrap(ErrUnableToOptimize, ""), "codec_error", err.Error())
	}
	return models.OptimizeResult{
		Buffer:      up.Buffer,
		ContentType: upstreamType,
		Extension:   imagetype.Extension(baseType(upstreamType)),
		MaxAge:      FallbackMaxAge,
		Error:       err,
	}, nil
}
