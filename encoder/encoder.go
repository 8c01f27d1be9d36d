// Package encoder resizes and re-encodes images. Each output type is served
// by one EncodeFunc, chosen at startup from the tools found in PATH, with a
// pure Go fallback for jpeg and png.
package encoder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.trai.ch/zerr"

	"pixopt/imagetype"
	"pixopt/logger"
)

// DefaultTimeout bounds a single transcode.
const DefaultTimeout = 7 * time.Second

var (
	ErrNoEncoder  = zerr.New("no encoder registered for output type")
	ErrTimeout    = zerr.New("transcode timed out")
	ErrTooLarge   = zerr.New("input image exceeds pixel limit")
	ErrEmptyInput = zerr.New("empty input image")
)

// Options describe one transcode. ContentType is the output MIME type.
type Options struct {
	Buffer      []byte
	ContentType string
	Quality     int
	Width       int
	// Height is optional. Without it the aspect ratio is kept and the image
	// is never enlarged.
	Height int
	// Effort trades speed for size where the codec supports it (webp, avif).
	Effort int
	// LimitInputPixels rejects inputs with more pixels. 0 means no limit.
	LimitInputPixels int
	// SequentialRead lets the native decoder skip the up-front size probe.
	SequentialRead bool
	Timeout        time.Duration
}

// EncodeFunc transcodes the file at input into output.
type EncodeFunc func(ctx context.Context, input, output string, opts Options) error

// Registry maps output MIME type to encoder.
var Registry = map[string]EncodeFunc{}

// Register adds an encoder if the underlying command exists. A later
// registration for the same type replaces an earlier one.
func Register(mimeType, cmdName string, fn EncodeFunc) {
	if _, err := exec.LookPath(cmdName); err != nil {
		logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", mimeType, cmdName)
		return
	}
	Registry[mimeType] = fn
	logger.Debugf("encoder [%s] registered (command: %s)", mimeType, cmdName)
}

// Get looks up the encoder for an output type.
func Get(mimeType string) (EncodeFunc, bool) {
	fn, ok := Registry[mimeType]
	return fn, ok
}

// RegisterDefaults registers every available encoder, in increasing order of
// preference.
func RegisterDefaults() {
	RegisterNative()
	Register(imagetype.WEBP, "cwebp", EncodeWebP)
	Register(imagetype.AVIF, "avifenc", EncodeAVIF)
	for _, mimeType := range []string{imagetype.JPEG, imagetype.PNG, imagetype.WEBP, imagetype.AVIF} {
		Register(mimeType, "magick", EncodeMagick)
	}
}

// Encoder runs registered encoders on in-memory buffers.
type Encoder struct{}

// Transcode writes the buffer to a scratch directory, runs the encoder for
// opts.ContentType and returns the output bytes.
func (Encoder) Transcode(ctx context.Context, opts Options) ([]byte, error) {
	if len(opts.Buffer) == 0 {
		return nil, ErrEmptyInput
	}
	fn, ok := Get(opts.ContentType)
	if !ok {
		return nil, zerr.With(zerr.Wrap(ErrNoEncoder, "transcode"), "content_type", opts.ContentType)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := checkPixelLimit(opts); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "pixopt-*")
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create scratch directory")
	}
	defer os.RemoveAll(dir)

	srcExt := "bin"
	if srcType := imagetype.Detect(opts.Buffer); srcType != "" {
		srcExt = imagetype.Extension(srcType)
	}
	input := filepath.Join(dir, "input."+srcExt)
	output := filepath.Join(dir, "output."+imagetype.Extension(opts.ContentType))
	if err := os.WriteFile(input, opts.Buffer, 0o600); err != nil {
		return nil, zerr.Wrap(err, "failed to write scratch input")
	}

	start := time.Now()
	if err := fn(ctx, input, output, opts); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, zerr.With(zerr.Wrap(ErrTimeout, "transcode"), "timeout", timeout.String())
		}
		return nil, zerr.With(zerr.Wrap(err, "encoder failed"), "content_type", opts.ContentType)
	}
	logger.Debugf("encoded %s (%d bytes) in %s", opts.ContentType, len(opts.Buffer), time.Since(start))

	out, err := os.ReadFile(output)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read encoder output")
	}
	if len(out) == 0 {
		return nil, zerr.With(zerr.New("encoder produced no output"), "content_type", opts.ContentType)
	}
	return out, nil
}

// targetSize resolves the output size for a srcW x srcH input. Without an
// explicit height the width never exceeds the source.
func targetSize(srcW, srcH int, opts Options) (int, int) {
	if opts.Height > 0 {
		return opts.Width, opts.Height
	}
	w := opts.Width
	if w <= 0 || w > srcW {
		w = srcW
	}
	if srcW == 0 {
		return w, 0
	}
	h := max(1, (srcH*w+srcW/2)/srcW)
	return w, h
}
