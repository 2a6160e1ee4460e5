package matching

import (
	"strings"
)

// WildcardKey is the capture name holding the remainder matched by a trailing '*'
const WildcardKey = "*"

// IsTemplate reports whether a path contains ':param' or '*' segments
func IsTemplate(path string) bool {
	for _, seg := range splitPath(path) {
		if seg == "*" || isParam(seg) {
			return true
		}
	}
	return false
}

// MatchPath checks a request path against a mock path template.
// Supports:
//   - Exact match: "/api/users" matches "/api/users"
//   - Named params: "/api/users/:id" matches "/api/users/42" capturing id=42
//   - Segment wildcard: "/api/*/items" matches "/api/users/items"
//   - Open suffix: "/files/*" matches "/files", "/files/a" and "/files/a/b"
//
// A named parameter matches exactly one non-empty segment, so "/users/:id"
// does not match "/users/42/orders".
func MatchPath(template, path string) (map[string]string, bool) {
	if normalizePath(template) == normalizePath(path) {
		return map[string]string{}, true
	}
	if !IsTemplate(template) {
		return nil, false
	}

	tmplParts := splitPath(template)
	pathParts := splitPath(path)
	captures := make(map[string]string)

	for i, seg := range tmplParts {
		last := i == len(tmplParts)-1

		if seg == "*" && last {
			if i < len(pathParts) {
				captures[WildcardKey] = strings.Join(pathParts[i:], "/")
			} else {
				captures[WildcardKey] = ""
			}
			return captures, i <= len(pathParts)
		}

		if i >= len(pathParts) {
			return nil, false
		}

		switch {
		case seg == "*":
			continue
		case isParam(seg):
			if pathParts[i] == "" {
				return nil, false
			}
			captures[seg[1:]] = pathParts[i]
		case seg != pathParts[i]:
			return nil, false
		}
	}

	if len(tmplParts) != len(pathParts) {
		return nil, false
	}
	return captures, true
}

func isParam(seg string) bool {
	return len(seg) > 1 && seg[0] == ':'
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// normalizePath drops a trailing slash except on the root path
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
