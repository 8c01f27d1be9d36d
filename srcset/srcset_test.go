package srcset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pixopt/config"
)

var (
	deviceSizes = []int{640, 750, 828, 1080, 1200, 1920, 2048, 3840}
	imageSizes  = []int{16, 32, 48, 64, 96, 128, 256, 384}
)

func intPtr(n int) *int { return &n }

func TestGetWidthsExplicitWidth(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, intPtr(400), "")
	assert.Equal(t, WidthPlan{Widths: []int{640, 828}, Kind: Density}, plan)
}

func TestGetWidthsExplicitWidthDedups(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, intPtr(3000), "")
	assert.Equal(t, []int{3840}, plan.Widths, "both densities fall back to the largest size")

	plan = GetWidths(deviceSizes, imageSizes, intPtr(16), "")
	assert.Equal(t, []int{16, 32}, plan.Widths)
}

func TestGetWidthsZero(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, intPtr(0), "")
	assert.Empty(t, plan.Widths)
	assert.Equal(t, Density, plan.Kind)
}

func TestGetWidthsSizesHint(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, nil, "50vw")
	assert.Equal(t, Width, plan.Kind)
	assert.Equal(t, []int{384, 640, 750, 828, 1080, 1200, 1920, 2048, 3840}, plan.Widths)
	for _, w := range plan.Widths {
		assert.GreaterOrEqual(t, w, 320)
	}

	plan = GetWidths(deviceSizes, imageSizes, intPtr(400), "(max-width: 768px) 100vw, 33vw")
	assert.Equal(t, Width, plan.Kind, "a hint wins over an explicit width")
	assert.Equal(t, 256, plan.Widths[0], "33vw of 640 is 211.2")
}

func TestGetWidthsHintWithoutPercentages(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, nil, "(max-width: 600px) 480px, 800px")
	assert.Equal(t, Width, plan.Kind)
	assert.Len(t, plan.Widths, len(deviceSizes)+len(imageSizes))
	assert.Equal(t, 16, plan.Widths[0])
}

func TestGetWidthsHintWithoutDeviceSizes(t *testing.T) {
	plan := GetWidths(nil, imageSizes, nil, "50vw")
	assert.Equal(t, WidthPlan{Widths: []int{}, Kind: Width}, plan)

	plan = GetWidths(nil, imageSizes, nil, "480px")
	assert.Equal(t, imageSizes, plan.Widths, "without a vw hint every size is kept")
}

func TestGetWidthsNoWidth(t *testing.T) {
	plan := GetWidths(deviceSizes, imageSizes, nil, "")
	assert.Equal(t, WidthPlan{Widths: deviceSizes, Kind: Width}, plan)
}

func TestGenerateImgAttrsDensity(t *testing.T) {
	cfg := config.DefaultImageConfig()
	attrs := GenerateImgAttrs(cfg, "/me.png", intPtr(400), 80, "", DefaultLoader(cfg.Path), false)
	assert.Equal(t, ImgAttrs{
		Src:    "/api/image?url=%2Fme.png&w=828&q=80",
		SrcSet: "/api/image?url=%2Fme.png&w=640&q=80 1x, /api/image?url=%2Fme.png&w=828&q=80 2x",
	}, attrs)
}

func TestGenerateImgAttrsWidthDescriptors(t *testing.T) {
	cfg := config.DefaultImageConfig()
	cfg.DeviceSizes = []int{640, 1080}
	cfg.ImageSizes = nil

	attrs := GenerateImgAttrs(cfg, "https://cdn.example.com/a.jpg", nil, 0, "", DefaultLoader("/img"), false)
	assert.Equal(t, "100vw", attrs.Sizes)
	assert.Equal(t, "/img?url=https%3A%2F%2Fcdn.example.com%2Fa.jpg&w=640&q=75 640w, /img?url=https%3A%2F%2Fcdn.example.com%2Fa.jpg&w=1080&q=75 1080w", attrs.SrcSet)
	assert.Equal(t, "/img?url=https%3A%2F%2Fcdn.example.com%2Fa.jpg&w=1080&q=75", attrs.Src)

	attrs = GenerateImgAttrs(cfg, "/a.jpg", nil, 0, "50vw", DefaultLoader("/img"), false)
	assert.Equal(t, "50vw", attrs.Sizes)
}

func TestGenerateImgAttrsUnoptimized(t *testing.T) {
	cfg := config.DefaultImageConfig()
	attrs := GenerateImgAttrs(cfg, "/me.png", intPtr(400), 80, "50vw", DefaultLoader(cfg.Path), true)
	assert.Equal(t, ImgAttrs{Src: "/me.png"}, attrs)

	attrs = GenerateImgAttrs(cfg, "/me.png", intPtr(0), 80, "", DefaultLoader(cfg.Path), false)
	assert.Equal(t, ImgAttrs{Src: "/me.png"}, attrs)
}
