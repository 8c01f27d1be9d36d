package encoder

import (
	"bufio"
	"bytes"
	"context"
	"image"
	_ "image/gif" // decoder registration
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"go.trai.ch/zerr"
	_ "golang.org/x/image/bmp"  // decoder registration
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // decoder registration
	_ "golang.org/x/image/webp" // decoder registration

	"pixopt/imagetype"
	"pixopt/logger"
)

// RegisterNative registers the pure Go jpeg and png encoders. They need no
// external command but do not honour EXIF orientation.
func RegisterNative() {
	Registry[imagetype.JPEG] = EncodeNative
	Registry[imagetype.PNG] = EncodeNative
	logger.Debugf("encoder [%s, %s] registered (native)", imagetype.JPEG, imagetype.PNG)
}

func checkPixelLimit(opts Options) error {
	if opts.LimitInputPixels <= 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(opts.Buffer))
	if err != nil {
		// not decodable here, the encoder enforces its own limits
		return nil
	}
	if cfg.Width*cfg.Height > opts.LimitInputPixels {
		return zerr.With(zerr.With(zerr.Wrap(ErrTooLarge, "transcode"), "width", cfg.Width), "height", cfg.Height)
	}
	return nil
}

// EncodeNative decodes any format registered with the image package, scales
// with Catmull-Rom and writes jpeg or png depending on opts.ContentType.
func EncodeNative(ctx context.Context, input, output string, opts Options) error {
	f, err := os.Open(input)
	if err != nil {
		return zerr.Wrap(err, "failed to open input")
	}
	defer f.Close()

	var r io.Reader = f
	if opts.SequentialRead {
		r = bufio.NewReader(f)
	} else {
		data, err := io.ReadAll(f)
		if err != nil {
			return zerr.Wrap(err, "failed to read input")
		}
		r = bytes.NewReader(data)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return zerr.Wrap(err, "failed to decode input")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := src.Bounds()
	w, h := targetSize(b.Dx(), b.Dy(), opts)
	img := src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := os.Create(output)
	if err != nil {
		return zerr.Wrap(err, "failed to create output")
	}
	defer out.Close()

	switch opts.ContentType {
	case imagetype.JPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: opts.Quality})
	case imagetype.PNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if opts.Effort > 5 {
			enc.CompressionLevel = png.BestCompression
		}
		err = enc.Encode(out, img)
	default:
		return zerr.With(zerr.Wrap(ErrNoEncoder, "native encoder"), "content_type", opts.ContentType)
	}
	if err != nil {
		return zerr.Wrap(err, "failed to encode output")
	}
	return out.Close()
}
