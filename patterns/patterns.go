// Package patterns decides whether a source URL is on the configured
// allow-lists. Hostnames and pathnames accept wildcards: "*" matches exactly
// one non-empty segment and "**" matches zero or more segments.
package patterns

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"go.trai.ch/zerr"

	"pixopt/models"
)

// ErrMissingHostname is a configuration error: every remote pattern has to
// name a hostname.
var ErrMissingHostname = zerr.New("pattern should define hostname")

// ErrInvalidPattern is returned when a wildcard fails to compile.
var ErrInvalidPattern = zerr.New("invalid pattern")

type compiledRemote struct {
	src      models.RemotePattern
	hostname glob.Glob
	pathname glob.Glob // nil when the pattern does not restrict the path
}

type compiledLocal struct {
	src      models.LocalPattern
	pathname glob.Glob
}

// Matcher holds the allow-lists with every wildcard compiled once.
type Matcher struct {
	remote []compiledRemote
	local  []compiledLocal
	// allowAllLocal is set when no local patterns were configured at all.
	allowAllLocal bool
}

// NewMatcher compiles the allow-lists. A nil local list allows every local
// path; an empty, non-nil list allows none.
func NewMatcher(remote []models.RemotePattern, local []models.LocalPattern) (*Matcher, error) {
	m := &Matcher{allowAllLocal: local == nil}
	for _, p := range remote {
		c, err := compileRemote(p)
		if err != nil {
			return nil, err
		}
		m.remote = append(m.remote, c)
	}
	for _, p := range local {
		c, err := compileLocal(p)
		if err != nil {
			return nil, err
		}
		m.local = append(m.local, c)
	}
	return m, nil
}

// Validate checks a remote pattern without keeping the compiled form.
func Validate(p models.RemotePattern) error {
	_, err := compileRemote(p)
	return err
}

func compileRemote(p models.RemotePattern) (compiledRemote, error) {
	if p.Hostname == "" {
		raw, _ := json.Marshal(p)
		return compiledRemote{}, zerr.With(zerr.Wrap(ErrMissingHostname, "remote pattern"), "pattern", string(raw))
	}
	host, err := compile(strings.ToLower(p.Hostname), '.')
	if err != nil {
		return compiledRemote{}, zerr.With(zerr.Wrap(ErrInvalidPattern, err.Error()), "hostname", p.Hostname)
	}
	c := compiledRemote{src: p, hostname: host}
	if p.Pathname != nil {
		c.pathname, err = compile(*p.Pathname, '/')
		if err != nil {
			return compiledRemote{}, zerr.With(zerr.Wrap(ErrInvalidPattern, err.Error()), "pathname", *p.Pathname)
		}
	}
	return c, nil
}

func compileLocal(p models.LocalPattern) (compiledLocal, error) {
	pathname := "**"
	if p.Pathname != nil {
		pathname = *p.Pathname
	}
	g, err := compile(pathname, '/')
	if err != nil {
		return compiledLocal{}, zerr.With(zerr.Wrap(ErrInvalidPattern, err.Error()), "pathname", pathname)
	}
	return compiledLocal{src: p, pathname: g}, nil
}

// anyGlob matches when one of its variants does.
type anyGlob []glob.Glob

func (a anyGlob) Match(s string) bool {
	for _, g := range a {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// compile builds a glob over sep-separated segments. A bare "*" segment is
// rewritten to "?*" so it cannot match an empty segment, and every "**"
// segment also yields a variant without it, so it can match no segment.
func compile(pattern string, sep rune) (glob.Glob, error) {
	variants := expandSegments(strings.Split(pattern, string(sep)), string(sep))
	globs := make(anyGlob, 0, len(variants))
	for _, v := range variants {
		g, err := glob.Compile(v, sep)
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}
	if len(globs) == 1 {
		return globs[0], nil
	}
	return globs, nil
}

func expandSegments(segs []string, sep string) []string {
	out := [][]string{nil}
	for _, seg := range segs {
		next := make([][]string, 0, len(out)*2)
		for _, prefix := range out {
			switch seg {
			case "*":
				next = append(next, append(slices.Clone(prefix), "?*"))
			case "**":
				next = append(next, append(slices.Clone(prefix), "**"), slices.Clone(prefix))
			default:
				next = append(next, append(slices.Clone(prefix), seg))
			}
		}
		out = next
	}
	variants := make([]string, 0, len(out))
	for _, v := range out {
		variants = append(variants, strings.Join(v, sep))
	}
	return variants
}

// search mirrors the browser URL API: "" when there is no query, otherwise
// the query with its leading "?".
func search(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

func pathname(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

// port drops the scheme's default port, the way a browser would.
func port(u *url.URL) string {
	p := u.Port()
	if (u.Scheme == "http" && p == "80") || (u.Scheme == "https" && p == "443") {
		return ""
	}
	return p
}

func (c compiledRemote) match(u *url.URL) bool {
	if c.src.Protocol != nil && *c.src.Protocol != u.Scheme {
		return false
	}
	if c.src.Port != nil && *c.src.Port != port(u) {
		return false
	}
	if !c.hostname.Match(strings.ToLower(u.Hostname())) {
		return false
	}
	if c.pathname != nil && !c.pathname.Match(pathname(u)) {
		return false
	}
	if c.src.Search != nil && *c.src.Search != search(u) {
		return false
	}
	return true
}

func (c compiledLocal) match(u *url.URL) bool {
	if c.src.Search != nil && *c.src.Search != search(u) {
		return false
	}
	return c.pathname.Match(pathname(u))
}

// MatchRemote reports whether u matches at least one remote pattern. An
// empty allow-list never matches.
func (m *Matcher) MatchRemote(u *url.URL) bool {
	for _, c := range m.remote {
		if c.match(u) {
			return true
		}
	}
	return false
}

// MatchLocal reports whether a rooted path (with optional query) is allowed.
func (m *Matcher) MatchLocal(pathAndQuery string) bool {
	if m.allowAllLocal {
		return true
	}
	u, err := parseLocal(pathAndQuery)
	if err != nil {
		return false
	}
	for _, c := range m.local {
		if c.match(u) {
			return true
		}
	}
	return false
}

func parseLocal(pathAndQuery string) (*url.URL, error) {
	base, _ := url.Parse("http://n")
	return base.Parse(pathAndQuery)
}

// MatchRemotePattern checks a single remote pattern against u.
func MatchRemotePattern(p models.RemotePattern, u *url.URL) (bool, error) {
	c, err := compileRemote(p)
	if err != nil {
		return false, err
	}
	return c.match(u), nil
}

// HasRemoteMatch compiles the patterns and checks u against them. Callers on
// the request path should build a Matcher once instead.
func HasRemoteMatch(remotePatterns []models.RemotePattern, u *url.URL) (bool, error) {
	m, err := NewMatcher(remotePatterns, []models.LocalPattern{})
	if err != nil {
		return false, err
	}
	return m.MatchRemote(u), nil
}

// MatchLocalPattern checks a single local pattern against u.
func MatchLocalPattern(p models.LocalPattern, u *url.URL) bool {
	c, err := compileLocal(p)
	if err != nil {
		return false
	}
	return c.match(u)
}

// HasLocalMatch reports whether pathAndQuery is allowed by localPatterns. A
// nil list allows every local image.
func HasLocalMatch(localPatterns []models.LocalPattern, pathAndQuery string) bool {
	m, err := NewMatcher(nil, localPatterns)
	if err != nil {
		return false
	}
	return m.MatchLocal(pathAndQuery)
}
