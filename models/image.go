package models

// ImageRequest is a validated, normalised image request. It is only ever
// built by params.Validate.
type ImageRequest struct {
	Href       string // normalised source reference
	IsAbsolute bool   // true for remote http(s) URLs, false for rooted local paths
	Width      int    // target width in pixels, > 0
	Quality    int    // 1–100
	MimeType   string // negotiated output type, empty keeps the default
	Sizes      []int  // allowed widths the request was checked against
}

// RemotePattern restricts which remote URLs may be optimized. Nil fields are
// not checked. Hostname is mandatory.
type RemotePattern struct {
	Protocol *string `yaml:"protocol,omitempty" json:"protocol,omitempty"` // "http" or "https"
	Hostname string  `yaml:"hostname" json:"hostname"`                     // literal or wildcard
	Port     *string `yaml:"port,omitempty" json:"port,omitempty"`         // "" means no port
	Pathname *string `yaml:"pathname,omitempty" json:"pathname,omitempty"` // literal or wildcard
	Search   *string `yaml:"search,omitempty" json:"search,omitempty"`     // literal, including "?"
}

// LocalPattern restricts which rooted local paths may be optimized.
type LocalPattern struct {
	Pathname *string `yaml:"pathname,omitempty" json:"pathname,omitempty"`
	Search   *string `yaml:"search,omitempty" json:"search,omitempty"`
}

// UpstreamImage is the unoptimized source as returned by a fetcher. Empty
// ContentType or CacheControl means the upstream did not send one.
type UpstreamImage struct {
	Buffer       []byte
	ContentType  string
	CacheControl string
}

// OptimizeParams are the transcode parameters taken from an ImageRequest.
type OptimizeParams struct {
	Width    int
	Quality  int
	MimeType string
}

// OptimizeResult is what the orchestrator hands back for caching. Error is
// set when the upstream bytes were served as a fallback.
type OptimizeResult struct {
	Buffer      []byte
	ContentType string
	Extension   string
	MaxAge      int
	Error       error
}

// StrPtr is a small helper for building optional pattern fields.
func StrPtr(s string) *string {
	return &s
}
