package encoder

import (
	"context"
	"fmt"
	"os/exec"

	"go.trai.ch/zerr"
)

func avifencArgs(input, output string, opts Options, srcW, srcH int) []string {
	args := []string{
		"--min", "0",
		"--max", "63",
		"-a", fmt.Sprintf("cq-level=%d", (100-opts.Quality)*63/100),
		"--speed", fmt.Sprint(min(max(9-opts.Effort, 0), 10)),
		"--ignore-exif",
	}
	if srcW > 0 {
		w, h := targetSize(srcW, srcH, opts)
		if w != srcW || h != srcH {
			args = append(args, "--resize", fmt.Sprintf("%dx%d", w, h))
		}
	}
	return append(args, input, output)
}

// EncodeAVIF encodes with avifenc. avifenc only reads jpeg, png and y4m.
func EncodeAVIF(ctx context.Context, input, output string, opts Options) error {
	srcW, srcH := sourceSize(input)
	cmd := exec.CommandContext(ctx, "avifenc", avifencArgs(input, output, opts, srcW, srcH)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return zerr.With(zerr.Wrap(err, "avifenc failed"), "output", string(out))
	}
	return nil
}
