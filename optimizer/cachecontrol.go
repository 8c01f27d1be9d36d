package optimizer

import (
	"strconv"
	"strings"
)

// ParseCacheControl splits a Cache-Control header into lower-cased
// directives. Directives without a value map to "".
func ParseCacheControl(header string) map[string]string {
	directives := make(map[string]string)
	if header == "" {
		return directives
	}
	for _, d := range strings.Split(header, ",") {
		key, value, _ := strings.Cut(strings.TrimSpace(d), "=")
		directives[strings.ToLower(key)] = strings.ToLower(value)
	}
	return directives
}

// GetMaxAge returns s-maxage, else max-age, in seconds. Anything missing or
// unparseable yields 0.
func GetMaxAge(header string) int {
	directives := ParseCacheControl(header)
	age := directives["s-maxage"]
	if age == "" {
		age = directives["max-age"]
	}
	if len(age) >= 2 && strings.HasPrefix(age, `"`) && strings.HasSuffix(age, `"`) {
		age = age[1 : len(age)-1]
	}
	return leadingInt(age)
}

// leadingInt parses an optionally signed run of leading digits, so "60s"
// reads as 60.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
