package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheKeyDefaultRule(t *testing.T) {
	rules := CompileRules(DefaultRules, nil)
	methods := map[string]bool{http.MethodGet: true}

	r := httptest.NewRequest(http.MethodGet, "/path?q=1", nil)
	r.Header.Set("Cookie", "session=abc")

	key, ok := CacheKey(r, "http://backend/path?q=1", rules, methods)
	require.True(t, ok)
	require.Equal(t, "GET /path?q=1 session=abc", key)
}

func TestCacheKeyRejectsUncachedMethod(t *testing.T) {
	rules := CompileRules(DefaultRules, nil)
	methods := map[string]bool{http.MethodGet: true}

	r := httptest.NewRequest(http.MethodPost, "/path", nil)
	_, ok := CacheKey(r, "http://backend/path", rules, methods)
	require.False(t, ok)
}

func TestCacheKeyFirstMatchingRuleWins(t *testing.T) {
	rules := CompileRules([]RuleSpec{
		{Pattern: `/static/`, Template: "static:%(PATH_INFO)s"},
		{Pattern: `.*`, Template: "catchall:%(PATH_INFO)s"},
	}, nil)
	methods := map[string]bool{http.MethodGet: true}

	r := httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
	key, ok := CacheKey(r, "http://backend/static/app.js", rules, methods)
	require.True(t, ok)
	require.Equal(t, "static:/static/app.js", key)
}

func TestCompileRulesSkipsInvalidPattern(t *testing.T) {
	var skipped []RuleSpec
	rules := CompileRules([]RuleSpec{{Pattern: "(", Template: "x"}}, func(spec RuleSpec, err error) {
		skipped = append(skipped, spec)
	})
	require.Empty(t, rules)
	require.Len(t, skipped, 1)
}
