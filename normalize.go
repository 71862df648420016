package main

import "strings"

// reservedIdentifierWords are SQL keywords that would otherwise collide with
// syntax when used unquoted as a column name. Extend as new injection-prone
// identifiers appear; never remove an entry.
var reservedIdentifierWords = map[string]bool{
	"select": true,
	"from":   true,
	"where":  true,
	"group":  true,
	"order":  true,
	"by":     true,
	"limit":  true,
	"offset": true,
	"join":   true,
	"table":  true,
}

// normalizeIdentifier maps an arbitrary string to a SQL-safe identifier, or
// returns ("", false) if nothing usable remains. It is idempotent: feeding its
// own output back in always returns the same string unchanged (L1).
func normalizeIdentifier(name string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	s = b.String()

	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")

	if s == "" {
		return "", false
	}

	first := s[0]
	if !((first >= 'a' && first <= 'z') || first == '_') {
		s = "col_" + s
	}
	if reservedIdentifierWords[s] {
		s = "col_" + s
	}
	return s, true
}

// isSafeIdentifier reports whether name is already a valid, normalized
// identifier that does not need to be rewritten.
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	first := name[0]
	if !((first >= 'a' && first <= 'z') || first == '_') {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return !reservedIdentifierWords[name]
}

// escapeIdentifier doubles embedded double-quotes per SQL identifier
// escaping rules, for safely embedding an arbitrary original column name
// into a quoted SQL identifier.
func escapeIdentifier(name string) string {
	return strings.ReplaceAll(name, `"`, `""`)
}
