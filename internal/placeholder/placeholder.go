package placeholder

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Extract returns every placeholder identifier found in body, in
// first-occurrence order, with surrounding whitespace inside the braces
// trimmed. Duplicates are retained; callers that need a set should pass
// the result through Unique. An unterminated "{{" yields no match.
func Extract(body string) []string {
	matches := pattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSpace(m[1]))
	}
	return names
}

// Unique deduplicates names preserving first-occurrence order.
func Unique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
