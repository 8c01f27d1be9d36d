package encoder

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"

	"go.trai.ch/zerr"
)

// sourceSize reads the dimensions of the image at path, or 0x0 when the
// format cannot be probed in Go.
func sourceSize(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func cwebpArgs(input, output string, opts Options, srcW, srcH int) []string {
	args := []string{
		"-quiet",
		"-q", fmt.Sprint(opts.Quality),
		"-m", fmt.Sprint(min(max(opts.Effort, 0), 6)),
		"-metadata", "none",
	}
	if srcW > 0 {
		w, h := targetSize(srcW, srcH, opts)
		if w != srcW || h != srcH {
			args = append(args, "-resize", fmt.Sprint(w), fmt.Sprint(h))
		}
	} else {
		// 0 height keeps the aspect ratio
		args = append(args, "-resize", fmt.Sprint(opts.Width), fmt.Sprint(opts.Height))
	}
	return append(args, input, "-o", output)
}

// EncodeWebP encodes with cwebp.
func EncodeWebP(ctx context.Context, input, output string, opts Options) error {
	srcW, srcH := sourceSize(input)
	cmd := exec.CommandContext(ctx, "cwebp", cwebpArgs(input, output, opts, srcW, srcH)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return zerr.With(zerr.Wrap(err, "cwebp failed"), "output", string(out))
	}
	return nil
}
