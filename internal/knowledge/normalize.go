// Package knowledge implements the lexical question matcher over the learned
// Q&A store: a stop-word and suffix-strip normalizer plus an intersection
// scorer with a cheap prefix-fuzzy extension.
package knowledge

import (
	"sort"
	"strings"
)

// Stop words in Russian and English. Tokens found here never become stems.
var stopWords = map[string]struct{}{}

var stopWordList = []string{
	"а", "и", "в", "на", "с", "что", "как", "это", "для", "по", "из",
	"у", "к", "о", "не", "да", "но", "же", "ли", "бы", "то", "вы",
	"мы", "он", "она", "они", "вас", "нас", "его", "её", "их", "мне",
	"есть", "быть", "был", "была", "будет", "можно", "нужно", "надо",
	"сколько", "какой", "какая", "какие", "когда", "где", "кто", "чем",
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "must", "shall", "can", "need", "dare",
	"ought", "used", "to", "of", "in", "for", "on", "with", "at", "by",
	"from", "or", "and", "not", "but", "if", "this", "that", "these",
	"those", "what", "which", "who", "whom", "how", "when", "where", "why",
}

// Common Russian endings stripped for rough stemming, longest first.
var suffixes = []string{
	"ться", "ить", "ать", "еть", "уть", "оть",
	"ение", "ание", "ость", "есть", "ство",
	"ого", "его", "ому", "ему", "ым", "им", "ой", "ей",
	"ёт", "ет", "ит", "ут", "ют", "ат", "ят",
	"ся", "сь",
}

const punctuation = "?!.,;:()\"'«»"

func init() {
	for _, w := range stopWordList {
		stopWords[w] = struct{}{}
	}
	// Longest suffix wins; the sort is stable so equal-length suffixes keep
	// table order and the strip stays deterministic.
	sort.SliceStable(suffixes, func(i, j int) bool {
		return len([]rune(suffixes[i])) > len([]rune(suffixes[j]))
	})
}

// Normalize reduces free text to an ordered set of stems: lowercase, strip
// punctuation, split on whitespace, drop stop words and tokens shorter than
// 3 characters, then strip the longest matching suffix. Deterministic but not
// idempotent (a second pass may strip further suffixes).
func Normalize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))

	var stems []string
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		token := strings.Trim(f, punctuation)
		if token == "" {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if len([]rune(token)) < 3 {
			continue
		}
		stem := stripSuffix(token)
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		stems = append(stems, stem)
	}
	return stems
}

// stripSuffix removes the longest matching suffix, keeping at least 3 runes
// of the word.
func stripSuffix(word string) string {
	runes := []rune(word)
	for _, suffix := range suffixes {
		sr := []rune(suffix)
		if len(runes) > len(sr)+2 && strings.HasSuffix(word, suffix) {
			return string(runes[:len(runes)-len(sr)])
		}
	}
	return word
}

// KeywordString renders the stems of a question as the space-separated
// keyword string stored alongside a knowledge entry.
func KeywordString(question string) string {
	return strings.Join(Normalize(question), " ")
}
