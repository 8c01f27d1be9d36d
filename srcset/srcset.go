// Package srcset plans which widths an <img> should offer and renders the
// matching src, srcset and sizes attributes.
package srcset

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"pixopt/config"
)

// DescriptorKind is the srcset descriptor used for each candidate.
type DescriptorKind string

const (
	// Width descriptors ("640w") let the browser pick from the sizes hint.
	Width DescriptorKind = "w"
	// Density descriptors ("2x") pick by device pixel ratio.
	Density DescriptorKind = "x"
)

// WidthPlan is the ordered list of widths to offer.
type WidthPlan struct {
	Widths []int
	Kind   DescriptorKind
}

var viewportWidthRe = regexp.MustCompile(`(^|\s)(1?\d?\d)vw`)

// GetWidths plans the candidate widths. A nil width means no explicit width
// was given; an explicit 0 yields an empty density plan.
func GetWidths(deviceSizes, imageSizes []int, width *int, sizes string) WidthPlan {
	allSizes := make([]int, 0, len(deviceSizes)+len(imageSizes))
	allSizes = append(allSizes, deviceSizes...)
	allSizes = append(allSizes, imageSizes...)
	slices.Sort(allSizes)

	if sizes != "" {
		var percents []int
		for _, m := range viewportWidthRe.FindAllStringSubmatch(sizes, -1) {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				percents = append(percents, n)
			}
		}
		if len(percents) == 0 {
			return WidthPlan{Widths: allSizes, Kind: Width}
		}
		if len(deviceSizes) == 0 {
			// no smallest viewport to scale, so no width qualifies
			return WidthPlan{Widths: []int{}, Kind: Width}
		}
		threshold := float64(deviceSizes[0]) * float64(slices.Min(percents)) * 0.01
		widths := make([]int, 0, len(allSizes))
		for _, s := range allSizes {
			if float64(s) >= threshold {
				widths = append(widths, s)
			}
		}
		return WidthPlan{Widths: widths, Kind: Width}
	}

	if width == nil {
		return WidthPlan{Widths: slices.Clone(deviceSizes), Kind: Width}
	}
	if *width == 0 || len(allSizes) == 0 {
		return WidthPlan{Widths: []int{}, Kind: Density}
	}

	// 1x and 2x only; 3x costs bytes the eye cannot resolve.
	widths := make([]int, 0, 2)
	for _, want := range []int{*width, *width * 2} {
		w := allSizes[len(allSizes)-1]
		if i, _ := slices.BinarySearch(allSizes, want); i < len(allSizes) {
			w = allSizes[i]
		}
		if !slices.Contains(widths, w) {
			widths = append(widths, w)
		}
	}
	return WidthPlan{Widths: widths, Kind: Density}
}

// LoaderProps is what a Loader needs to build one image URL.
type LoaderProps struct {
	Src     string
	Width   int
	Quality int
}

// Loader builds the URL of src at one width.
type Loader func(p LoaderProps) string

// DefaultQuality is used by DefaultLoader when no quality is given.
const DefaultQuality = 75

// DefaultLoader points at the optimizer endpoint mounted at path.
func DefaultLoader(path string) Loader {
	return func(p LoaderProps) string {
		q := p.Quality
		if q == 0 {
			q = DefaultQuality
		}
		return fmt.Sprintf("%s?url=%s&w=%d&q=%d", path, url.QueryEscape(p.Src), p.Width, q)
	}
}

// ImgAttrs are the rendered <img> attributes. Empty means "omit".
type ImgAttrs struct {
	Src    string `json:"src"`
	SrcSet string `json:"srcSet,omitempty"`
	Sizes  string `json:"sizes,omitempty"`
}

// GenerateImgAttrs renders src, srcset and sizes. src points at the largest
// candidate. Unoptimized images, and plans with no candidates, keep the raw
// src.
func GenerateImgAttrs(cfg *config.ImageConfig, src string, width *int, quality int, sizes string, loader Loader, unoptimized bool) ImgAttrs {
	if unoptimized {
		return ImgAttrs{Src: src}
	}
	plan := GetWidths(cfg.DeviceSizes, cfg.ImageSizes, width, sizes)

	attrs := ImgAttrs{Sizes: sizes}
	if sizes == "" && plan.Kind == Width {
		attrs.Sizes = "100vw"
	}
	if len(plan.Widths) == 0 {
		attrs.Src = src
		return attrs
	}

	candidates := make([]string, len(plan.Widths))
	for i, w := range plan.Widths {
		descriptor := w
		if plan.Kind == Density {
			descriptor = i + 1
		}
		u := loader(LoaderProps{Src: src, Width: w, Quality: quality})
		candidates[i] = fmt.Sprintf("%s %d%s", u, descriptor, plan.Kind)
	}
	attrs.SrcSet = strings.Join(candidates, ", ")
	attrs.Src = loader(LoaderProps{Src: src, Width: plan.Widths[len(plan.Widths)-1], Quality: quality})
	return attrs
}
