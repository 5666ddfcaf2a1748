package usecase

import (
	"strings"
	"unicode"
)

// tokenizeMixed lowercases latin/digit runs and emits Han unigrams plus
// bigrams, so Chinese clinical phrasing and English metric names land
// in one comparable token space.
func tokenizeMixed(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 24)
	var latin strings.Builder
	var prevHan rune

	flushLatin := func() {
		if latin.Len() > 0 {
			tokens = append(tokens, latin.String())
			latin.Reset()
		}
	}

	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			prevHan = 0
			latin.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			prevHan = 0
			latin.WriteRune(unicode.ToLower(r))
		case unicode.Is(unicode.Han, r):
			flushLatin()
			tokens = append(tokens, string(r))
			if prevHan != 0 {
				tokens = append(tokens, string(prevHan)+string(r))
			}
			prevHan = r
		default:
			flushLatin()
			prevHan = 0
		}
	}
	flushLatin()

	return tokens
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tokenizeMixed(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func jaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
