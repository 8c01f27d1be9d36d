// Package imagetype holds the MIME types pixopt knows about and sniffs them
// from raw bytes.
package imagetype

import "strings"

const (
	AVIF = "image/avif"
	WEBP = "image/webp"
	PNG  = "image/png"
	JPEG = "image/jpeg"
	GIF  = "image/gif"
	SVG  = "image/svg+xml"
	ICO  = "image/x-icon"
	TIFF = "image/tiff"
	BMP  = "image/bmp"
)

// signature is a magic-number prefix. A zero byte in want is a wildcard.
type signature struct {
	want     []byte
	wildcard bool
	mime     string
}

// Order matters: the first matching table entry wins.
var signatures = []signature{
	{want: []byte{0xff, 0xd8, 0xff}, mime: JPEG},
	{want: []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}, mime: PNG},
	{want: []byte{0x47, 0x49, 0x46, 0x38}, mime: GIF},
	// RIFF....WEBP, the size field in between is ignored
	{want: []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0, 0x57, 0x45, 0x42, 0x50}, wildcard: true, mime: WEBP},
	{want: []byte{0x3c, 0x3f, 0x78, 0x6d, 0x6c}, mime: SVG}, // <?xml
	{want: []byte{0x3c, 0x73, 0x76, 0x67}, mime: SVG},       // <svg
	// ....ftypavif, the box size in front is ignored
	{want: []byte{0, 0, 0, 0, 0x66, 0x74, 0x79, 0x70, 0x61, 0x76, 0x69, 0x66}, wildcard: true, mime: AVIF},
	{want: []byte{0x00, 0x00, 0x01, 0x00}, mime: ICO},
	{want: []byte{0x49, 0x49, 0x2a, 0x00}, mime: TIFF},
	{want: []byte{0x42, 0x4d}, mime: BMP},
}

func (s signature) matches(buf []byte) bool {
	if len(buf) < len(s.want) {
		return false
	}
	for i, b := range s.want {
		if s.wildcard && b == 0 {
			continue
		}
		if buf[i] != b {
			return false
		}
	}
	return true
}

// Detect inspects the first bytes of buf and returns the MIME type of the
// first known file signature it matches, or "" when nothing matches.
func Detect(buf []byte) string {
	for _, s := range signatures {
		if s.matches(buf) {
			return s.mime
		}
	}
	return ""
}

// Extension maps a MIME type to the file extension used in the cache.
func Extension(mime string) string {
	switch mime {
	case JPEG:
		return "jpeg"
	case SVG:
		return "svg"
	case ICO:
		return "ico"
	}
	return strings.TrimPrefix(mime, "image/")
}

// ContentTypeFor is the inverse of Extension, used when serving cached files.
func ContentTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case "jpeg", "jpg":
		return JPEG
	case "png":
		return PNG
	case "webp":
		return WEBP
	case "avif":
		return AVIF
	case "gif":
		return GIF
	case "svg":
		return SVG
	case "ico":
		return ICO
	case "tiff", "tif":
		return TIFF
	case "bmp":
		return BMP
	}
	return ""
}

// IsVector reports whether mime is a vector format.
func IsVector(mime string) bool {
	return strings.HasPrefix(mime, "image/svg")
}

// IsAnimatable reports whether mime may carry more than one frame.
func IsAnimatable(mime string) bool {
	return mime == WEBP || mime == PNG || mime == GIF
}
