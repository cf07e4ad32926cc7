// Package suggest provides fuzzy matching for "did you mean" hints using
// Levenshtein distance.
package suggest

import (
	"sort"
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// Similar returns candidates close to unknown, best first, at most three.
// Comparison ignores case and leading dashes.
func Similar(unknown string, candidates []string) []string {
	norm := func(s string) string { return strings.ToLower(strings.TrimLeft(s, "-")) }
	unknown = norm(unknown)

	type scored struct {
		value string
		score int
	}
	var matches []scored

	// Only suggest if reasonably close (within 3 edits or 50% of length)
	maxDist := max(3, len(unknown)/2)
	for _, c := range candidates {
		n := norm(c)
		dist := levenshtein(unknown, n)
		if strings.Contains(n, unknown) && unknown != "" {
			dist = min(dist, 1)
		}
		if dist <= maxDist {
			matches = append(matches, scored{c, dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score < matches[j].score })

	var result []string
	for i := 0; i < len(matches) && i < 3; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// Hint formats a "did you mean" suffix for unknown, or "" when nothing is
// close.
func Hint(unknown string, candidates []string) string {
	matches := Similar(unknown, candidates)
	if len(matches) == 0 {
		return ""
	}
	return " (did you mean " + strings.Join(matches, " or ") + "?)"
}

// CommonAliases maps words people reach for to the name rwalk uses.
var CommonAliases = map[string]string{
	"site":      "site_photo",
	"sediment":  "sediment_photo",
	"pebble":    "sediment_photo",
	"url":       "server.url",
	"server":    "server.url",
	"retries":   "sync.max_attempts",
	"attempts":  "sync.max_attempts",
	"interval":  "sync.interval",
	"timeout":   "sync.http_timeout",
	"dir":       "store.dir",
	"data-dir":  "store.dir",
	"autosync":  "sync.on_start",
	"auto-sync": "sync.on_start",
}

// Resolve maps a common alias to its canonical name when the canonical name
// is among candidates. The second result reports whether a mapping applied.
func Resolve(value string, candidates []string) (string, bool) {
	canonical, ok := CommonAliases[strings.ToLower(value)]
	if !ok {
		return value, false
	}
	for _, c := range candidates {
		if c == canonical {
			return canonical, true
		}
	}
	return value, false
}
