package rules

import "strings"

// similarityThreshold is the minimum similarity ratio for a fuzzy match.
// Terms below it are treated as unmatched.
const similarityThreshold = 0.6

// MatchAll resolves extracted symptom mentions against the canonical list.
// Exact case-insensitive matches win; otherwise the closest canonical key by
// similarity ratio is accepted if it clears the threshold. The result keeps
// first-seen order and drops duplicates.
func MatchAll(extracted, canonical []string) []string {
	var matched []string
	seen := make(map[string]bool)

	for _, term := range extracted {
		key := MatchOne(term, canonical)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		matched = append(matched, key)
	}

	return matched
}

// MatchOne resolves a single term to its canonical key, or "" when no
// canonical key is close enough.
func MatchOne(term string, canonical []string) string {
	t := strings.ToLower(strings.TrimSpace(term))
	if t == "" {
		return ""
	}

	for _, k := range canonical {
		if t == strings.ToLower(k) {
			return k
		}
	}

	best := ""
	bestRatio := 0.0
	for _, k := range canonical {
		ratio := similarity(t, strings.ToLower(k))
		if ratio > bestRatio {
			bestRatio = ratio
			best = k
		}
	}
	if bestRatio >= similarityThreshold {
		return best
	}

	return ""
}

// similarity returns an edit-distance based ratio in [0,1]: 1 for equal
// strings, 0 for nothing in common.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}

	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes the edit distance between a and b with a two-row
// dynamic programming table.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
