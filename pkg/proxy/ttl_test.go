package proxy

import "testing"

func TestCacheTTL(t *testing.T) {
	cases := []struct {
		name          string
		cacheControl  string
		want          int
	}{
		{"empty header", "", -1},
		{"no public", "max-age=60", -1},
		{"public with max-age", "public, max-age=60", 60},
		{"public no-store wins", "public, no-store, max-age=60", -1},
		{"public private wins", "public, private", -1},
		{"last max-age wins", "public, max-age=30, max-age=90", 90},
		{"malformed max-age", "public, max-age=soon", -1},
		{"public alone", "public", -1},
		{"whitespace tolerant", " public , max-age = 45 ", 45},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CacheTTL(tc.cacheControl)
			if got != tc.want {
				t.Errorf("CacheTTL(%q) = %d, want %d", tc.cacheControl, got, tc.want)
			}
		})
	}
}
