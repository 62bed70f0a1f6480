package node

import "github.com/agext/levenshtein"

// levenshteinDistance wraps agext/levenshtein for the Accept possible-typo
// check (spec.md §4.3). Promoted from an indirect-only dependency (pulled
// in transitively by hashicorp/hcl/v2) to a direct, exercised one.
func levenshteinDistance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}
