package textutil

import (
	"math"
	"strings"
)

// Fingerprint is a normalized term-frequency vector over a title's tokens,
// used to rank catalog search results against the user's query.
type Fingerprint struct {
	terms map[string]float64
	norm  float64
}

// NewFingerprint tokenizes text and builds its term vector. Returns nil when
// the text carries no alphanumeric content.
func NewFingerprint(text string) *Fingerprint {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		terms[token]++
	}
	var sum float64
	for _, count := range terms {
		sum += count * count
	}
	return &Fingerprint{terms: terms, norm: math.Sqrt(sum)}
}

// tokenize lowercases text and splits on runs of non-alphanumeric runes.
// Single-letter tokens are kept so short series titles still produce a
// usable vector.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		lower := r >= 'a' && r <= 'z'
		digit := r >= '0' && r <= '9'
		return !lower && !digit
	})
}

// CosineSimilarity scores how closely two fingerprints match, in [0, 1].
// A nil fingerprint scores 0 against everything.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for term, count := range a.terms {
		if other, ok := b.terms[term]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
