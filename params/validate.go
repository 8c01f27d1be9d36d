// Package params turns untrusted image query parameters into a typed,
// validated models.ImageRequest.
package params

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/munnerz/goautoneg"

	"pixopt/config"
	"pixopt/models"
	"pixopt/patterns"
)

const (
	// MaxURLLength is the longest "url" parameter accepted.
	MaxURLLength = 3072
	// BlurImgSize is the largest width accepted outside the allow-list in
	// development, for low-res placeholders.
	BlurImgSize = 8
	// BlurQuality is the quality used for development placeholders.
	BlurQuality = 70
)

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

// ParamError is a user-correctable validation failure. It is returned,
// never panicked, and its message is safe to show to clients.
type ParamError struct {
	ErrorMessage string
}

func (e *ParamError) Error() string {
	return e.ErrorMessage
}

func fail(msg string) *ParamError {
	return &ParamError{ErrorMessage: msg}
}

// single returns the one value of key, and whether it was sent as an array
// (repeated key).
func single(query url.Values, key string) (string, bool) {
	vals := query[key]
	if len(vals) > 1 {
		return "", true
	}
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], false
}

// Validate checks the url, w and q parameters in order and returns the first
// failure. matcher carries the compiled allow-lists from cfg.
func Validate(acceptHeader string, query url.Values, cfg *config.ImageConfig, matcher *patterns.Matcher, isDev bool) (models.ImageRequest, *ParamError) {
	rawURL, isArray := single(query, "url")
	if isArray {
		return models.ImageRequest{}, fail(`"url" parameter cannot be an array`)
	}
	if rawURL == "" {
		return models.ImageRequest{}, fail(`"url" parameter is required`)
	}
	if len(rawURL) > MaxURLLength {
		return models.ImageRequest{}, fail(`"url" parameter is too long`)
	}
	if strings.HasPrefix(rawURL, "//") {
		return models.ImageRequest{}, fail(`"url" parameter cannot be a protocol-relative URL (//)`)
	}

	var (
		href       string
		isAbsolute bool
	)
	if strings.HasPrefix(rawURL, "/") {
		href = rawURL
		if !matcher.MatchLocal(rawURL) {
			return models.ImageRequest{}, fail(`"url" parameter is not allowed`)
		}
	} else {
		parsed, err := url.Parse(rawURL)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return models.ImageRequest{}, fail(`"url" parameter is invalid`)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return models.ImageRequest{}, fail(`"url" parameter is invalid`)
		}
		if !matcher.MatchRemote(parsed) {
			return models.ImageRequest{}, fail(`"url" parameter is not allowed`)
		}
		href = parsed.String()
		isAbsolute = true
	}

	w, isArray := single(query, "w")
	if isArray {
		return models.ImageRequest{}, fail(`"w" parameter (width) cannot be an array`)
	}
	if w == "" {
		return models.ImageRequest{}, fail(`"w" parameter (width) is required`)
	}
	if !digitsRe.MatchString(w) {
		return models.ImageRequest{}, fail(`"w" parameter (width) must be an integer greater than 0`)
	}

	q, isArray := single(query, "q")
	if isArray {
		return models.ImageRequest{}, fail(`"q" parameter (quality) cannot be an array`)
	}
	if q == "" {
		return models.ImageRequest{}, fail(`"q" parameter (quality) is required`)
	}
	if !digitsRe.MatchString(q) {
		return models.ImageRequest{}, fail(`"q" parameter (quality) must be an integer between 1 and 100`)
	}

	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return models.ImageRequest{}, fail(`"w" parameter (width) must be an integer greater than 0`)
	}

	sizes := cfg.AllSizes()
	if !slices.Contains(sizes, width) && !(isDev && width <= BlurImgSize) {
		return models.ImageRequest{}, fail(fmt.Sprintf(`"w" parameter (width) of %d is not allowed`, width))
	}

	quality, err := strconv.Atoi(q)
	if err != nil || quality < 1 || quality > 100 {
		return models.ImageRequest{}, fail(`"q" parameter (quality) must be an integer between 1 and 100`)
	}

	return models.ImageRequest{
		Href:       href,
		IsAbsolute: isAbsolute,
		Width:      width,
		Quality:    quality,
		MimeType:   SupportedMimeType(cfg.Formats, acceptHeader),
		Sizes:      sizes,
	}, nil
}

// SupportedMimeType negotiates the output format from the Accept header.
// The header has to name the format explicitly; wildcards alone keep the
// source format ("").
func SupportedMimeType(formats []string, accept string) string {
	if accept == "" || len(formats) == 0 {
		return ""
	}
	mimeType := goautoneg.Negotiate(accept, formats)
	if mimeType == "" || !strings.Contains(accept, mimeType) {
		return ""
	}
	return mimeType
}
