package encoder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixopt/imagetype"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// withRegistry swaps the global registry for the duration of a test.
func withRegistry(t *testing.T, r map[string]EncodeFunc) {
	t.Helper()
	saved := Registry
	Registry = r
	t.Cleanup(func() { Registry = saved })
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		opts         Options
		wantW, wantH int
	}{
		{"downscale keeps ratio", 1000, 500, Options{Width: 640}, 640, 320},
		{"never enlarges", 300, 200, Options{Width: 640}, 300, 200},
		{"explicit height", 300, 200, Options{Width: 640, Height: 100}, 640, 100},
		{"rounds", 1000, 333, Options{Width: 640}, 640, 213},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := targetSize(tt.srcW, tt.srcH, tt.opts)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestNativeTranscodeToJPEG(t *testing.T) {
	withRegistry(t, map[string]EncodeFunc{})
	RegisterNative()

	out, err := Encoder{}.Transcode(context.Background(), Options{
		Buffer:      testPNG(t, 200, 100),
		ContentType: imagetype.JPEG,
		Quality:     75,
		Width:       64,
	})
	require.NoError(t, err)
	assert.Equal(t, imagetype.JPEG, imagetype.Detect(out))

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestNativeTranscodeSequentialPNG(t *testing.T) {
	withRegistry(t, map[string]EncodeFunc{})
	RegisterNative()

	out, err := Encoder{}.Transcode(context.Background(), Options{
		Buffer:         testPNG(t, 40, 40),
		ContentType:    imagetype.PNG,
		Quality:        90,
		Width:          640,
		SequentialRead: true,
	})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx(), "must not enlarge")
}

func TestTranscodeErrors(t *testing.T) {
	withRegistry(t, map[string]EncodeFunc{})
	RegisterNative()

	_, err := Encoder{}.Transcode(context.Background(), Options{Buffer: []byte("x"), ContentType: imagetype.AVIF})
	assert.True(t, errors.Is(err, ErrNoEncoder))

	_, err = Encoder{}.Transcode(context.Background(), Options{ContentType: imagetype.JPEG})
	assert.True(t, errors.Is(err, ErrEmptyInput))

	_, err = Encoder{}.Transcode(context.Background(), Options{
		Buffer:           testPNG(t, 100, 100),
		ContentType:      imagetype.JPEG,
		Quality:          75,
		Width:            64,
		LimitInputPixels: 100,
	})
	assert.True(t, errors.Is(err, ErrTooLarge))

	_, err = Encoder{}.Transcode(context.Background(), Options{
		Buffer:      []byte("definitely not an image"),
		ContentType: imagetype.JPEG,
		Quality:     75,
		Width:       64,
	})
	assert.Error(t, err)
}

func TestTranscodeTimeout(t *testing.T) {
	withRegistry(t, map[string]EncodeFunc{
		imagetype.WEBP: func(ctx context.Context, _, _ string, _ Options) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	_, err := Encoder{}.Transcode(context.Background(), Options{
		Buffer:      testPNG(t, 4, 4),
		ContentType: imagetype.WEBP,
		Timeout:     10 * time.Millisecond,
	})
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestTranscodeScratchFiles(t *testing.T) {
	var gotInput string
	withRegistry(t, map[string]EncodeFunc{
		imagetype.WEBP: func(_ context.Context, input, output string, _ Options) error {
			gotInput = input
			return os.WriteFile(output, []byte("webp"), 0o600)
		},
	})

	out, err := Encoder{}.Transcode(context.Background(), Options{Buffer: testPNG(t, 4, 4), ContentType: imagetype.WEBP})
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), out)
	assert.Contains(t, gotInput, "input.png")
	assert.NoFileExists(t, gotInput, "scratch directory is removed")
}

func TestMagickArgs(t *testing.T) {
	args := magickArgs("in.png", "out.avif", Options{ContentType: imagetype.AVIF, Width: 640, Quality: 55, Effort: 3})
	assert.Equal(t, []string{
		"in.png", "-auto-orient",
		"-resize", "640x>",
		"-quality", "55",
		"-define", "heic:speed=6",
		"avif:out.avif",
	}, args)

	args = magickArgs("in.png", "out.jpeg", Options{ContentType: imagetype.JPEG, Width: 640, Height: 480, Quality: 75, LimitInputPixels: 1000})
	assert.Equal(t, []string{
		"in.png", "-auto-orient",
		"-limit", "area", "1000",
		"-resize", "640x480!",
		"-quality", "75",
		"-strip", "-interlace", "JPEG",
		"jpeg:out.jpeg",
	}, args)
}

func TestCwebpArgs(t *testing.T) {
	args := cwebpArgs("in.png", "out.webp", Options{Width: 640, Quality: 75, Effort: 4}, 1280, 720)
	assert.Equal(t, []string{"-quiet", "-q", "75", "-m", "4", "-metadata", "none", "-resize", "640", "360", "in.png", "-o", "out.webp"}, args)

	args = cwebpArgs("in.png", "out.webp", Options{Width: 640, Quality: 75}, 320, 200)
	assert.NotContains(t, args, "-resize", "no enlargement")
}
