package service

import (
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model/memory"
)

// Search score weights; they sum to 1 so a fully relevant, fresh,
// heavily used memory scores its RelevanceScore
const (
	lexicalWeight = 0.6
	recencyWeight = 0.25
	usageWeight   = 0.15

	// recencyDecayHours is the decay constant of the recency term (one week)
	recencyDecayHours = 168.0

	// usageSaturation is the use count at which the usage term reaches 1
	usageSaturation = 20
)

// tokenize NFKC-normalises, lower-cases and splits on anything that is not a letter or digit
func tokenize(s string) []string {
	s = strings.ToLower(norm.NFKC.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryTerms returns the distinct tokens of a query, in order of appearance
func queryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range tokenize(query) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// memoryTokens is the token set of a memory's content and tags
func memoryTokens(m *memory.Memory) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(m.Content) {
		set[t] = struct{}{}
	}
	for _, tag := range m.Tags {
		for _, t := range tokenize(tag) {
			set[t] = struct{}{}
		}
	}
	return set
}

// lexicalScore is the fraction of query terms found in the memory; an empty query matches everything
func lexicalScore(terms []string, m *memory.Memory) float64 {
	if len(terms) == 0 {
		return 1
	}
	tokens := memoryTokens(m)
	matched := 0
	for _, t := range terms {
		if _, ok := tokens[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func recencyScore(lastUsed, now time.Time) float64 {
	hours := now.Sub(lastUsed).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours / recencyDecayHours)
}

func usageScore(useCount int) float64 {
	if useCount <= 0 {
		return 0
	}
	return math.Min(1, math.Log1p(float64(useCount))/math.Log(usageSaturation+1))
}

// scoreMemory combines the terms; ok is false when the memory shares no term with the query
func scoreMemory(terms []string, m *memory.Memory, now time.Time) (score float64, ok bool) {
	lex := lexicalScore(terms, m)
	if lex == 0 {
		return 0, false
	}
	combined := lexicalWeight*lex + recencyWeight*recencyScore(m.LastUsed, now) + usageWeight*usageScore(m.UseCount)
	return m.RelevanceScore * combined, true
}
