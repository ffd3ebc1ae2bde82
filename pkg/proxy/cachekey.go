package proxy

import (
	"net/http"
	"regexp"
)

// RuleSpec is the configuration-level description of a cache-key rule: a
// pattern matched against the backend URL, and a template used to build the
// key when it matches.
type RuleSpec struct {
	Pattern  string
	Template string
}

// Rule is a compiled RuleSpec.
type Rule struct {
	Pattern  *regexp.Regexp
	Template string
}

// DefaultCacheMethods lists the HTTP methods eligible for caching when no
// explicit configuration is given.
var DefaultCacheMethods = []string{http.MethodGet, http.MethodHead}

// DefaultRules matches every URL and builds a key from the request line and
// cookie, mirroring the one rule the original proxy shipped with.
var DefaultRules = []RuleSpec{
	{Pattern: ".*", Template: "%(REQUEST_METHOD)s %(PATH_INFO)s?%(QUERY_STRING)s %(HTTP_COOKIE)s"},
}

// fieldPattern matches a %(FIELD)s placeholder in a key template.
var fieldPattern = regexp.MustCompile(`%\(([A-Za-z_]+)\)s`)

// CompileRules compiles each RuleSpec's pattern, skipping (and logging via
// onError, if non-nil) any that fail to compile.
func CompileRules(specs []RuleSpec, onError func(spec RuleSpec, err error)) []Rule {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			if onError != nil {
				onError(spec, err)
			}
			continue
		}
		rules = append(rules, Rule{Pattern: re, Template: spec.Template})
	}
	return rules
}

// requestFields extracts the template placeholders CacheKey understands
// from an inbound request.
func requestFields(r *http.Request) map[string]string {
	return map[string]string{
		"REQUEST_METHOD": r.Method,
		"PATH_INFO":      r.URL.Path,
		"QUERY_STRING":   r.URL.RawQuery,
		"HTTP_COOKIE":    r.Header.Get("Cookie"),
		"HTTP_HOST":      r.Host,
	}
}

func expandTemplate(template string, fields map[string]string) string {
	return fieldPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := fieldPattern.FindStringSubmatch(match)[1]
		return fields[name]
	})
}

// CacheKey derives a cache key for r against backendURL, if the request's
// method and the backend URL both qualify under methods and rules. The
// first matching rule wins.
func CacheKey(r *http.Request, backendURL string, rules []Rule, methods map[string]bool) (string, bool) {
	if !methods[r.Method] {
		return "", false
	}
	for _, rule := range rules {
		if rule.Pattern.MatchString(backendURL) {
			return expandTemplate(rule.Template, requestFields(r)), true
		}
	}
	return "", false
}
