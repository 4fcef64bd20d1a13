package kvmirror

import (
	"path/filepath"
	"strings"
)

// Matcher tests logical keys. *regexp.Regexp satisfies it.
type Matcher interface {
	MatchString(s string) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(string) bool

func (f MatcherFunc) MatchString(s string) bool { return f(s) }

// Glob returns a Matcher using filepath.Match syntax.
// An empty pattern or "*" matches every key.
func Glob(pattern string) (Matcher, error) {
	if pattern == "" || pattern == "*" {
		return MatcherFunc(func(string) bool { return true }), nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, ErrInvalidPattern
	}
	return MatcherFunc(func(s string) bool {
		ok, _ := filepath.Match(pattern, s)
		return ok
	}), nil
}

// Prefix matches keys starting with p.
func Prefix(p string) Matcher {
	return MatcherFunc(func(s string) bool { return strings.HasPrefix(s, p) })
}
