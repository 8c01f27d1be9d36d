package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.trai.ch/zerr"

	"pixopt/imagetype"
)

// magickArgs builds the ImageMagick command line for opts.
func magickArgs(input, output string, opts Options) []string {
	args := []string{input, "-auto-orient"}
	if opts.LimitInputPixels > 0 {
		args = append(args, "-limit", "area", fmt.Sprint(opts.LimitInputPixels))
	}
	if opts.Height > 0 {
		args = append(args, "-resize", fmt.Sprintf("%dx%d!", opts.Width, opts.Height))
	} else {
		args = append(args, "-resize", fmt.Sprintf("%dx>", opts.Width))
	}
	args = append(args, "-quality", fmt.Sprint(opts.Quality))

	switch opts.ContentType {
	case imagetype.WEBP:
		args = append(args, "-define", fmt.Sprintf("webp:method=%d", min(max(opts.Effort, 0), 6)))
	case imagetype.AVIF:
		// heic:speed runs 0 (slowest) to 9
		args = append(args, "-define", fmt.Sprintf("heic:speed=%d", min(max(9-opts.Effort, 0), 9)))
	case imagetype.JPEG:
		args = append(args, "-strip", "-interlace", "JPEG")
	}
	return append(args, fmt.Sprintf("%s:%s", imagetype.Extension(opts.ContentType), output))
}

// EncodeMagick encodes jpeg, png, webp and avif with ImageMagick.
func EncodeMagick(ctx context.Context, input, output string, opts Options) error {
	cmd := exec.CommandContext(ctx, "magick", magickArgs(input, output, opts)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return zerr.With(zerr.Wrap(err, "magick failed"), "stderr", strings.TrimSpace(stderr.String()))
	}
	return nil
}
