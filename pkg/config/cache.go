package config

import "fmt"

// Rule is a single cache-key derivation rule: Pattern is matched against
// the full backend URL, and Template builds the key on a match.
type Rule struct {
	Pattern  string `yaml:"Pattern"`
	Template string `yaml:"Template"`
}

// Cache holds the proxy's caching policy and storage backend settings.
type Cache struct {
	// Backend selects the storage implementation: "memory", "lru" or
	// "bolt".
	Backend string `yaml:"Backend"`
	// Methods lists the HTTP methods eligible for caching. Empty means the
	// proxy's own default (GET, HEAD).
	Methods []string `yaml:"Methods"`
	// Rules lists cache-key derivation rules, evaluated in order. Empty
	// means the proxy's own default single catch-all rule.
	Rules []Rule `yaml:"Rules"`
	// MaxBodyBytes bounds how large a response body may be before it is
	// excluded from caching. Zero means the proxy's own default.
	MaxBodyBytes int64 `yaml:"MaxBodyBytes"`
	// LRUSize is the entry-count cap used by the "lru" backend.
	LRUSize int `yaml:"LRUSize"`
	// BoltPath is the database file used by the "bolt" backend.
	BoltPath string `yaml:"BoltPath"`
}

// Validate returns an error if the Cache configuration is not valid.
func (c Cache) Validate() error {
	switch c.Backend {
	case "", "memory":
	case "lru":
		if c.LRUSize <= 0 {
			return fmt.Errorf("Cache.LRUSize must be positive when Cache.Backend is lru")
		}
	case "bolt":
		if c.BoltPath == "" {
			return fmt.Errorf("Cache.BoltPath must be set when Cache.Backend is bolt")
		}
	default:
		return fmt.Errorf("invalid Cache.Backend: %s", c.Backend)
	}
	return nil
}
