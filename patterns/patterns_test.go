package patterns

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixopt/models"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRemoteWildcardHostname(t *testing.T) {
	p := models.RemotePattern{Hostname: "*.example.com"}

	tests := []struct {
		url  string
		want bool
	}{
		{"https://img.example.com/a.png", true},
		{"https://example.com/a.png", false},
		{"https://img.example.org/a.png", false},
		{"https://a.b.example.com/a.png", false},
		{"https://IMG.Example.com/a.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := MatchRemotePattern(p, mustURL(t, tt.url))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteDoubleWildcardHostname(t *testing.T) {
	p := models.RemotePattern{Hostname: "**.example.com"}
	for _, raw := range []string{"https://a.example.com/x", "https://a.b.c.example.com/x"} {
		ok, err := MatchRemotePattern(p, mustURL(t, raw))
		require.NoError(t, err)
		assert.True(t, ok, raw)
	}
	ok, err := MatchRemotePattern(p, mustURL(t, "https://example.org/x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWildcardSegmentRules(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		pathname string
		url      string
		want     bool
	}{
		{"double star host matches zero labels", "**.example.com", "", "https://example.com/x", true},
		{"double star path matches bare prefix", "example.com", "/img/**", "https://example.com/img", true},
		{"double star path matches nested", "example.com", "/img/**", "https://example.com/img/a/b.png", true},
		{"double star in the middle matches zero segments", "example.com", "/a/**/b", "https://example.com/a/b", true},
		{"double star in the middle matches several", "example.com", "/a/**/b", "https://example.com/a/x/y/b", true},
		{"double star keeps the prefix", "example.com", "/img/**", "https://example.com/imgs/a.png", false},
		{"star needs a non-empty segment", "example.com", "/a/*/b", "https://example.com/a//b", false},
		{"star matches one segment", "example.com", "/a/*/b", "https://example.com/a/x/b", true},
		{"star host needs a label", "*.example.com", "", "https://.example.com/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.RemotePattern{Hostname: tt.hostname}
			if tt.pathname != "" {
				p.Pathname = models.StrPtr(tt.pathname)
			}
			got, err := MatchRemotePattern(p, mustURL(t, tt.url))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteFields(t *testing.T) {
	base := models.RemotePattern{
		Protocol: models.StrPtr("https"),
		Hostname: "cdn.example.com",
		Port:     models.StrPtr(""),
		Pathname: models.StrPtr("/images/**"),
		Search:   models.StrPtr(""),
	}

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"all fields match", "https://cdn.example.com/images/a/b.png", true},
		{"default port is no port", "https://cdn.example.com:443/images/a.png", true},
		{"wrong protocol", "http://cdn.example.com/images/a.png", false},
		{"explicit port", "https://cdn.example.com:8443/images/a.png", false},
		{"outside path", "https://cdn.example.com/other/a.png", false},
		{"query not allowed", "https://cdn.example.com/images/a.png?v=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchRemotePattern(base, mustURL(t, tt.url))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteSinglePathSegment(t *testing.T) {
	p := models.RemotePattern{Hostname: "example.com", Pathname: models.StrPtr("/img/*"), Search: models.StrPtr("?v=1")}
	ok, err := MatchRemotePattern(p, mustURL(t, "https://example.com/img/a.png?v=1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchRemotePattern(p, mustURL(t, "https://example.com/img/a/b.png?v=1"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MatchRemotePattern(p, mustURL(t, "https://example.com/img/a.png?v=2"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingHostnameIsFatal(t *testing.T) {
	_, err := MatchRemotePattern(models.RemotePattern{Pathname: models.StrPtr("/x")}, mustURL(t, "https://example.com/x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingHostname))

	_, err = NewMatcher([]models.RemotePattern{{Hostname: "ok.com"}, {}}, nil)
	assert.True(t, errors.Is(err, ErrMissingHostname))
}

func TestEmptyRemoteAllowListDeniesAll(t *testing.T) {
	ok, err := HasRemoteMatch(nil, mustURL(t, "https://example.com/a.png"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasRemoteMatchAny(t *testing.T) {
	ps := []models.RemotePattern{{Hostname: "a.com"}, {Hostname: "b.com"}}
	ok, err := HasRemoteMatch(ps, mustURL(t, "https://b.com/x.jpg"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalPatterns(t *testing.T) {
	assert.True(t, HasLocalMatch(nil, "/anything/at/all.png?x=1"), "nil list allows all")
	assert.False(t, HasLocalMatch([]models.LocalPattern{}, "/a.png"), "empty list allows none")

	ps := []models.LocalPattern{
		{Pathname: models.StrPtr("/assets/**"), Search: models.StrPtr("")},
		{Pathname: models.StrPtr("/static/*.png")},
	}
	assert.True(t, HasLocalMatch(ps, "/assets/img/logo.png"))
	assert.False(t, HasLocalMatch(ps, "/assets/img/logo.png?v=2"))
	assert.True(t, HasLocalMatch(ps, "/static/a.png?v=2"))
	assert.False(t, HasLocalMatch(ps, "/static/nested/a.png"))
	assert.False(t, HasLocalMatch(ps, "/private/a.png"))
}

func TestMatchLocalPattern(t *testing.T) {
	p := models.LocalPattern{Search: models.StrPtr("?v=1")}
	assert.True(t, MatchLocalPattern(p, mustURL(t, "http://n/any/path.png?v=1")))
	assert.False(t, MatchLocalPattern(p, mustURL(t, "http://n/any/path.png")))
}
