package proxy

import (
	"strconv"
	"strings"
)

// preventCaching lists Cache-Control directives that rule out caching
// outright, regardless of any max-age present alongside them.
var preventCaching = map[string]bool{
	"private":          true,
	"no-cache":         true,
	"no-store":         true,
	"must-revalidate":  true,
	"proxy-revalidate": true,
}

// CacheTTL derives a cacheability decision from a Cache-Control header
// value. It returns -1 if the response must not be cached, and otherwise
// the number of seconds the response should be kept. A response is only
// cacheable if it declares "public"; of any "name=number" directives
// present (typically max-age), the last one to be seen wins, and one that
// fails to parse as a number aborts caching entirely rather than being
// skipped.
func CacheTTL(cacheControl string) int {
	if cacheControl == "" {
		return -1
	}
	directives := strings.Split(cacheControl, ",")
	for i := range directives {
		directives[i] = strings.TrimSpace(directives[i])
	}

	hasPublic := false
	for _, d := range directives {
		if strings.EqualFold(d, "public") {
			hasPublic = true
			break
		}
	}
	if !hasPublic {
		return -1
	}

	ttl := -1
	for _, d := range directives {
		if preventCaching[strings.ToLower(d)] {
			return -1
		}
		_, value, hasValue := strings.Cut(d, "=")
		if !hasValue {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return -1
		}
		ttl = n
	}
	return ttl
}
