package search

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// accentStripper decomposes characters and drops combining marks, so
// "pâté" and "pate" normalize identically.
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeText lowercases and accent-strips s.
func normalizeText(s string) string {
	out, _, err := transform.String(accentStripper, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// cosineSimilarity computes the cosine between two vectors; 0 for
// mismatched lengths or zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// stemLength maps strictness in [0,1] to the per-word stem length used
// by deep search.
func stemLength(strictness float64) int {
	l := 4 + int(math.Round(5*strictness))
	if l < 4 {
		l = 4
	}
	if l > 9 {
		l = 9
	}
	return l
}

// queryWords tokenizes a query into lowercase words of length >= 3.
func queryWords(query string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(normalizeText(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

// deepSearchAdjust adjusts a semantic score by how many query word
// stems occur (word-boundary aware) in the candidate's textual content.
func deepSearchAdjust(score float64, words []string, content string, strictness float64) float64 {
	if len(words) == 0 || content == "" {
		return score
	}

	l := stemLength(strictness)
	contentWords := strings.FieldsFunc(normalizeText(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	matched := 0
	for _, w := range words {
		stem := w
		if len(stem) > l {
			stem = stem[:l]
		}
		for _, cw := range contentWords {
			if strings.HasPrefix(cw, stem) {
				matched++
				break
			}
		}
	}

	ratio := float64(matched) / float64(len(words))
	switch {
	case ratio == 1:
		return score + 0.15 + 0.25*strictness
	case ratio >= 0.5:
		return score + (0.08+0.12*strictness)*ratio
	default:
		return score - (0.05 + 0.15*strictness)
	}
}

// trigrams returns the set of 3-grams of s.
func trigrams(s string) map[string]bool {
	set := make(map[string]bool)
	if len(s) < 3 {
		if s != "" {
			set[s] = true
		}
		return set
	}
	for i := 0; i+3 <= len(s); i++ {
		set[s[i:i+3]] = true
	}
	return set
}

// trigramJaccard computes Jaccard similarity between the trigram sets
// of two normalized words.
func trigramJaccard(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for g := range ta {
		if tb[g] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// fuzzyWordScore rates how well a query word matches a content word,
// both already normalized.
func fuzzyWordScore(query, content string) float64 {
	if query == content {
		return 0.90
	}
	if strings.HasPrefix(content, query) || strings.HasPrefix(query, content) {
		return 0.80
	}
	switch j := trigramJaccard(query, content); {
	case j >= 0.75:
		return 0.75
	case j >= 0.65:
		return 0.65
	case j >= 0.55:
		return 0.55
	}
	return 0
}

// scoreTagsExact counts query terms occurring verbatim (as whole
// words) in the content words; any hit earns ratio + 0.1.
func scoreTagsExact(words []string, contentWords map[string]bool) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if contentWords[w] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits)/float64(len(words)) + 0.1
}

// scoreTagsFuzzy rates each query word against the best content word
// and aggregates into a mean ratio. Returns 0 when no word matches.
func scoreTagsFuzzy(words []string, contentWords []string) float64 {
	if len(words) == 0 || len(contentWords) == 0 {
		return 0
	}
	var total float64
	matchedAny := false
	for _, w := range words {
		best := 0.0
		for _, cw := range contentWords {
			if s := fuzzyWordScore(w, cw); s > best {
				best = s
			}
		}
		if best > 0 {
			matchedAny = true
		}
		total += best
	}
	if !matchedAny {
		return 0
	}
	return total / float64(len(words))
}

// richnessBonus rewards records with more textual content, capped low
// so it only breaks ties.
func richnessBonus(contentLen int) float64 {
	return math.Min(0.1, float64(contentLen)/1000)
}
