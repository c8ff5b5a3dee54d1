// Package matcher selects requests by ant-style path patterns.
package matcher

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gobwas/glob"
)

// RequestMatcher decides whether a request belongs to a chain.
type RequestMatcher interface {
	Matches(r *http.Request) bool
}

// AnyRequest matches every request.
type AnyRequest struct{}

func (AnyRequest) Matches(*http.Request) bool { return true }

// AntMatcher matches the request path against an ant-style pattern:
// '?' one character, '*' within one path segment, '**' across segments.
// A trailing "/**" also matches the bare prefix.
type AntMatcher struct {
	glob   glob.Glob
	prefix string
}

func NewAntMatcher(pattern string) (*AntMatcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty path pattern")
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	m := &AntMatcher{glob: g}
	if strings.HasSuffix(pattern, "/**") {
		m.prefix = strings.TrimSuffix(pattern, "/**")
	}
	return m, nil
}

func (m *AntMatcher) Matches(r *http.Request) bool {
	return m.MatchesPath(r.URL.Path)
}

func (m *AntMatcher) MatchesPath(path string) bool {
	if m.prefix != "" && path == m.prefix {
		return true
	}
	return m.glob.Match(path)
}

// OrMatcher matches when any of its matchers does.
type OrMatcher []RequestMatcher

func (o OrMatcher) Matches(r *http.Request) bool {
	for _, m := range o {
		if m.Matches(r) {
			return true
		}
	}
	return false
}

// ForPattern returns AnyRequest for the catch-all patterns and an
// AntMatcher otherwise.
func ForPattern(pattern string) (RequestMatcher, error) {
	if pattern == "/**" || pattern == "**" {
		return AnyRequest{}, nil
	}
	return NewAntMatcher(pattern)
}

// AntMatchers compiles all patterns into one OrMatcher.
func AntMatchers(patterns ...string) (OrMatcher, error) {
	matchers := make(OrMatcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := ForPattern(p)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}
