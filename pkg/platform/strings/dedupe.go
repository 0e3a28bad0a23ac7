// Package strings provides string slice helpers shared by the engine.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return Union(values)
}

// Union concatenates lists and keeps the first occurrence of every trimmed,
// non-empty element. The result is never nil.
//
//	Union([]string{"a", "b"}, []string{"b", " c"})
//	// []string{"a", "b", "c"}
func Union(lists ...[]string) []string {
	n := 0
	for _, l := range lists {
		n += len(l)
	}

	seen := make(map[string]struct{}, n)
	result := make([]string, 0, n)
	for _, l := range lists {
		for _, v := range l {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}
	return result
}

// NormalizeKey lowercases and trims a config key and folds inner spaces and
// dashes to underscores: " Public-Records " becomes "public_records".
func NormalizeKey(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(v)
}
